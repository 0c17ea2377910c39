package engine

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const (
	speakerBufferSize   = 250 * time.Millisecond
	probeSampleRate     = beep.SampleRate(44100)
	volumeCurveExponent = 0.5
	minVolumeDB         = -10.0
)

// Sink is the audio output the player drives. The real implementation sits on
// the speaker package; tests substitute a manually pumped sink so the
// playhead advances deterministically.
type Sink interface {
	// Start initializes the output at the given rate and begins pulling from
	// the streamer.
	Start(sampleRate int, s beep.Streamer) error
	// SetPaused stops or resumes sample consumption without tearing down.
	SetPaused(paused bool)
	// SetVolume applies an output level in percent [0, 100].
	SetVolume(percent int)
	// Clear stops playback and detaches the streamer.
	Clear()
}

var (
	probeOnce sync.Once
	probeErr  error
)

// IsSupported reports whether the runtime's audio output primitive is
// available. The probe runs once; an unsupported runtime stays unsupported.
func IsSupported() bool {
	probeOnce.Do(func() {
		probeErr = speaker.Init(probeSampleRate, probeSampleRate.N(speakerBufferSize))
		if probeErr != nil {
			log.Warn().Err(probeErr).Msg("Audio output unavailable")
		}
	})
	return probeErr == nil
}

// speakerSink is the production Sink on top of beep's speaker.
type speakerSink struct {
	mu            sync.Mutex
	ctrl          *beep.Ctrl
	volume        *effects.Volume
	volumePercent int
	sampleRate    beep.SampleRate
}

func newSpeakerSink(volumePercent int) *speakerSink {
	return &speakerSink{volumePercent: volumePercent}
}

func (s *speakerSink) Start(sampleRate int, streamer beep.Streamer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := beep.SampleRate(sampleRate)
	if rate != s.sampleRate {
		if err := speaker.Init(rate, rate.N(speakerBufferSize)); err != nil {
			return fmt.Errorf("failed to initialize audio output: %w", err)
		}
		s.sampleRate = rate
		log.Debug().Int("rate", sampleRate).Msg("Speaker initialized")
	}

	s.volume = &effects.Volume{
		Streamer: streamer,
		Base:     2,
		Volume:   percentToExponent(float64(s.volumePercent)),
		Silent:   s.volumePercent == 0,
	}
	s.ctrl = &beep.Ctrl{Streamer: s.volume}

	speaker.Clear()
	speaker.Play(s.ctrl)
	return nil
}

func (s *speakerSink) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl == nil {
		return
	}
	speaker.Lock()
	s.ctrl.Paused = paused
	speaker.Unlock()
}

func (s *speakerSink) SetVolume(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volumePercent = percent
	if s.volume == nil {
		return
	}

	speaker.Lock()
	s.volume.Volume = percentToExponent(float64(percent))
	s.volume.Silent = percent == 0
	speaker.Unlock()
	log.Debug().Int("percent", percent).Msg("Volume set")
}

func (s *speakerSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	speaker.Clear()
	s.ctrl = nil
	s.volume = nil
}

// percentToExponent maps a volume percentage onto a perceptual dB curve.
func percentToExponent(p float64) float64 {
	if p <= 0 {
		return minVolumeDB
	}
	if p >= 100 {
		return 0
	}

	normalized := p / 100.0
	adjusted := math.Pow(normalized, volumeCurveExponent)
	return (1.0 - adjusted) * minVolumeDB
}
