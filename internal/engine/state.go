package engine

import "errors"

// State is the authoritative playback state. Exactly one per player instance,
// owned by the player; observers only ever see snapshots carried on events.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateSeeking
	StateSwitchingPreset
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateLoading:
		return "LOADING"
	case StateReady:
		return "READY"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateSeeking:
		return "SEEKING"
	case StateSwitchingPreset:
		return "SWITCHING_PRESET"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrNotInitialized is returned by any command issued before Initialize
	// or after Destroy.
	ErrNotInitialized = errors.New("player not initialized")
	// ErrInvalidTransition is returned by a command the current state does
	// not permit.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrUnsupported is returned by Initialize when the runtime has no usable
	// audio output.
	ErrUnsupported = errors.New("audio output not supported on this runtime")
	// ErrInvalidPreset is returned by SwitchPreset for an empty or unknown
	// preset name.
	ErrInvalidPreset = errors.New("invalid preset name")
)
