package engine

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/mkaleva/chunkcast/internal/buffer"
	"github.com/mkaleva/chunkcast/internal/timing"
)

// DecodeFunc turns an opaque chunk payload into decoded stereo frames at the
// track's sample rate.
type DecodeFunc func(data []byte) ([][2]float64, error)

// newMP3Decoder returns the default decoder for MP3-framed chunk payloads,
// resampling to the track rate when the payload disagrees.
func newMP3Decoder(trackRate int) DecodeFunc {
	return func(data []byte) ([][2]float64, error) {
		streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode chunk payload: %w", err)
		}
		defer streamer.Close()

		var src beep.Streamer = streamer
		if int(format.SampleRate) != trackRate {
			src = beep.Resample(4, format.SampleRate, beep.SampleRate(trackRate), streamer)
		}

		var samples [][2]float64
		block := make([][2]float64, 2048)
		for {
			n, ok := src.Stream(block)
			samples = append(samples, block[:n]...)
			if !ok {
				break
			}
		}
		if err := streamer.Err(); err != nil {
			return nil, fmt.Errorf("chunk decode error: %w", err)
		}
		return samples, nil
	}
}

// spliceState is a transient second crossfade layered over normal playback
// during a preset switch: the pre-switch samples fade out while the freshly
// buffered ones fade in, using the same envelope as chunk transitions.
type spliceState struct {
	oldCurrent *buffer.Entry
	oldNext    *buffer.Entry
	start      float64
	end        float64
	done       func()
}

// mixer is the beep.Streamer that reads buffered chunks, blends crossfade
// regions, and exposes the audio clock. The playhead is defined by the frames
// the sink has actually consumed, never by a wall-clock counter.
type mixer struct {
	buf *buffer.Manager
	env timing.Envelope

	rate     int
	duration float64

	// onUnderrun fires once per dry spell, on the audio goroutine.
	onUnderrun func(position float64)
	// onEnd fires once when the playhead reaches the stream duration.
	onEnd func()

	mu         sync.Mutex
	baseTime   float64
	frames     int64
	window     buffer.Window
	haveWindow bool
	dry        bool
	ended      bool
	splice     *spliceState
}

func newMixer(buf *buffer.Manager, env timing.Envelope) *mixer {
	track := buf.Track()
	return &mixer{
		buf:      buf,
		env:      env,
		rate:     track.SampleRate,
		duration: track.Duration,
	}
}

// Position returns the playhead in seconds: the base offset plus the frames
// the sink has consumed since the last reposition.
func (m *mixer) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positionLocked()
}

func (m *mixer) positionLocked() float64 {
	pos := m.baseTime + float64(m.frames)/float64(m.rate)
	if pos > m.duration {
		return m.duration
	}
	return pos
}

// SetPosition repositions the playhead, used by seeks. The buffered window is
// discarded and end detection is re-armed. A splice cut short mid-fade still
// reports completion: its chunks were already applied, only the audible
// cross-mix is abandoned.
func (m *mixer) SetPosition(t float64) {
	m.mu.Lock()
	m.baseTime = t
	m.frames = 0
	m.haveWindow = false
	m.dry = false
	m.ended = false
	if sp := m.splice; sp != nil && sp.done != nil {
		go sp.done()
	}
	m.splice = nil
	m.mu.Unlock()
}

// BeginSplice starts a preset-switch crossfade at the current playhead. The
// old entries keep the pre-switch audio alive while the buffer already holds
// the new-preset samples; done runs when the cross-mix has audibly completed.
func (m *mixer) BeginSplice(oldCurrent, oldNext *buffer.Entry, fadeSeconds float64, done func()) {
	m.mu.Lock()
	start := m.positionLocked()
	end := start + fadeSeconds
	if end > m.duration {
		end = m.duration
	}
	m.splice = &spliceState{
		oldCurrent: oldCurrent,
		oldNext:    oldNext,
		start:      start,
		end:        end,
		done:       done,
	}
	// Force a window refetch so the new-preset entries are picked up.
	m.haveWindow = false
	m.mu.Unlock()
}

// Stream implements beep.Streamer. An unbuffered playhead produces silence
// rather than blocking, which keeps the output device fed during underruns.
func (m *mixer) Stream(samples [][2]float64) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var endReached, wentDry bool
	var dryAt float64

	for i := range samples {
		t := m.baseTime + float64(m.frames)/float64(m.rate)

		if t >= m.duration {
			samples[i] = [2]float64{}
			if !m.ended {
				m.ended = true
				endReached = true
			}
			continue
		}

		if !m.haveWindow || t >= m.window.ValidUntil {
			m.window, m.haveWindow = m.buf.WindowAt(t)
		}

		if !m.haveWindow {
			samples[i] = [2]float64{}
			if !m.dry {
				m.dry = true
				wentDry = true
				dryAt = t
			}
			m.frames++
			continue
		}
		m.dry = false

		frame := m.blendFrame(m.window.Current, m.window.Next, t)

		if sp := m.splice; sp != nil {
			if t >= sp.end {
				if sp.done != nil {
					go sp.done()
				}
				m.splice = nil
			} else if t >= sp.start {
				oldFrame := m.blendFrame(sp.oldCurrent, sp.oldNext, t)
				outGain, inGain := m.env.Gains((t - sp.start) / (sp.end - sp.start))
				frame[0] = oldFrame[0]*outGain + frame[0]*inGain
				frame[1] = oldFrame[1]*outGain + frame[1]*inGain
			}
		}

		samples[i] = frame
		m.frames++
	}

	if endReached && m.onEnd != nil {
		go m.onEnd()
	}
	if wentDry && m.onUnderrun != nil {
		go m.onUnderrun(dryAt)
	}

	return len(samples), true
}

// blendFrame mixes the chunk pair covering t with the crossfade envelope. A
// nil next means no overlap is live at t.
func (m *mixer) blendFrame(current, next *buffer.Entry, t float64) [2]float64 {
	if current == nil {
		return [2]float64{}
	}
	frame := current.FrameAt(t, m.rate)
	if next == nil || t < next.Meta.StartTime {
		return frame
	}

	region := timing.Region{Start: next.Meta.StartTime, End: current.Meta.EndTime}
	outGain, inGain := m.env.Gains(region.Progress(t))
	incoming := next.FrameAt(t, m.rate)
	return [2]float64{
		frame[0]*outGain + incoming[0]*inGain,
		frame[1]*outGain + incoming[1]*inGain,
	}
}

func (m *mixer) Err() error {
	return nil
}
