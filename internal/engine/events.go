package engine

import (
	"sync"

	"github.com/google/uuid"
	"github.com/mkaleva/chunkcast/internal/api"
)

// EventType classifies the notifications the player emits to observers.
type EventType int

const (
	// EventStateChange carries every state transition as {Old, New}.
	EventStateChange EventType = iota
	// EventTimeUpdate carries the playhead position while playing, capped at
	// ten per second.
	EventTimeUpdate
	// EventChunkLoaded fires when a fetched chunk lands in the buffer.
	EventChunkLoaded
	// EventPresetSwitched fires when a preset switch has audibly completed.
	EventPresetSwitched
	// EventUnderrun fires when the playhead reaches the buffered edge before
	// new data has arrived. Non-fatal; playback resumes on its own.
	EventUnderrun
	// EventError carries both non-fatal warnings and fatal failures; Fatal
	// distinguishes them.
	EventError
)

func (e EventType) String() string {
	switch e {
	case EventStateChange:
		return "statechange"
	case EventTimeUpdate:
		return "timeupdate"
	case EventChunkLoaded:
		return "chunkloaded"
	case EventPresetSwitched:
		return "presetswitched"
	case EventUnderrun:
		return "underrun"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a read-only snapshot delivered to observers. Only the fields
// relevant to Type are populated.
type Event struct {
	Type    EventType
	Session uuid.UUID

	OldState State
	NewState State

	Position float64

	Chunk *api.ChunkMetadata

	OldPreset string
	NewPreset string
	LatencyMs int64

	Err   error
	Fatal bool
}

// Handler receives events. Handlers run synchronously on the emitting
// goroutine and must not block.
type Handler func(Event)

type eventBus struct {
	mu     sync.Mutex
	subs   map[EventType]map[int]Handler
	nextID int
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[EventType]map[int]Handler)}
}

// on registers a handler and returns its unsubscribe function.
func (b *eventBus) on(t EventType, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[t] == nil {
		b.subs[t] = make(map[int]Handler)
	}
	b.nextID++
	id := b.nextID
	b.subs[t][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], id)
	}
}

// emit delivers the event to every handler registered for its type. Handlers
// are snapshotted under the lock and called outside it, so a handler may
// subscribe or unsubscribe without deadlocking.
func (b *eventBus) emit(ev Event) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[ev.Type]))
	for _, h := range b.subs[ev.Type] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// clear detaches every handler. Used by Destroy.
func (b *eventBus) clear() {
	b.mu.Lock()
	b.subs = make(map[EventType]map[int]Handler)
	b.mu.Unlock()
}
