package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mkaleva/chunkcast/internal/api"
	"github.com/mkaleva/chunkcast/internal/buffer"
	"github.com/mkaleva/chunkcast/internal/fetch"
	"github.com/rs/zerolog/log"
)

// presetFadeSeconds is the cross-mix window for an in-place preset switch.
// It reuses the ordinary crossfade envelope, only over a shorter window so
// the switch is heard promptly.
const presetFadeSeconds = 0.5

type switchChunk struct {
	chunk   *api.Chunk
	samples [][2]float64
}

// presetSwitch tracks one in-flight preset switch: the re-fetches of the
// currently playing region under the new preset, and the state to restore.
type presetSwitch struct {
	gen       uint64
	oldPreset string
	newPreset string
	started   time.Time
	resume    State

	want map[int]bool
	got  map[int]switchChunk
}

// SwitchPreset re-fetches and re-buffers the currently playing time region
// under a new preset without stopping playback, cross-mixing old to new with
// the ordinary crossfade envelope. All-or-nothing: if the new-preset fetch
// fails the player stays on the old preset and its state is unchanged. A
// second switch supersedes an unfinished one.
func (p *Player) SwitchPreset(preset string) error {
	if preset == "" {
		return fmt.Errorf("empty preset: %w", ErrInvalidPreset)
	}
	return p.switchTo(preset)
}

func (p *Player) switchTo(preset string) error {
	p.mu.Lock()
	if p.destroyed || p.track == nil || p.fetcher == nil {
		p.mu.Unlock()
		return ErrNotInitialized
	}

	switch p.state {
	case StatePlaying, StatePaused, StateSwitchingPreset:
	default:
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("cannot switch preset from %s: %w", state, ErrInvalidTransition)
	}

	oldPreset := p.settings.effectivePreset()
	if preset == oldPreset && p.activeSwitch == nil {
		p.mu.Unlock()
		return nil
	}

	resume := p.state
	if p.state == StateSwitchingPreset && p.activeSwitch != nil {
		resume = p.activeSwitch.resume
		oldPreset = p.activeSwitch.oldPreset
	}

	// Drop the superseded switch's pending fetches; their requests are about
	// to be cancelled by slot reuse and must never apply.
	for gen, intent := range p.pending {
		if intent.sw != nil {
			delete(p.pending, gen)
		}
	}

	track := *p.track
	pos := p.mix.Position()
	seqCur, ok := p.buf.SequenceAt(pos)
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("cannot switch preset while position %.3f is unbuffered: %w", pos, ErrInvalidTransition)
	}

	p.switchGen++
	sw := &presetSwitch{
		gen:       p.switchGen,
		oldPreset: oldPreset,
		newPreset: preset,
		started:   time.Now(),
		resume:    resume,
		want:      map[int]bool{seqCur: true},
		got:       make(map[int]switchChunk),
	}

	// The playhead's chunk is always re-fetched; its overlapping successor is
	// too when the stream has one, so the upcoming crossfade is coherent.
	nextStart := float64(seqCur+1) * track.ChunkInterval
	if nextStart < track.Duration {
		sw.want[seqCur+1] = true
	}

	p.activeSwitch = sw
	if preset != "" {
		p.settings.Preset = preset
		p.settings.Enabled = true
	} else {
		p.settings.Enabled = false
	}

	curStart := float64(seqCur) * track.ChunkInterval
	gen := p.fetcher.Request(context.Background(), fetch.SlotCurrent, track.TrackID, curStart, preset)
	p.pending[gen] = fetchIntent{sw: sw}
	if sw.want[seqCur+1] {
		gen = p.fetcher.Request(context.Background(), fetch.SlotLookahead, track.TrackID, nextStart, preset)
		p.pending[gen] = fetchIntent{sw: sw}
	}
	p.lookaheadPending = false

	ev, ok := p.setStateLocked(StateSwitchingPreset)
	p.mu.Unlock()

	p.emit(ev, ok)
	log.Debug().Str("old", sw.oldPreset).Str("new", preset).Float64("position", pos).Msg("Preset switch started")
	return nil
}

// handleSwitchChunk collects the re-fetched chunks of a switch and applies
// them atomically once all have arrived.
func (p *Player) handleSwitchChunk(sw *presetSwitch, chunk *api.Chunk, samples [][2]float64) {
	p.mu.Lock()
	if p.activeSwitch == nil || p.activeSwitch.gen != sw.gen {
		p.mu.Unlock()
		return
	}

	seq := chunk.Meta.Sequence
	if !sw.want[seq] {
		p.mu.Unlock()
		log.Debug().Int("seq", seq).Msg("Discarding unexpected switch chunk")
		return
	}
	sw.got[seq] = switchChunk{chunk: chunk, samples: samples}
	if len(sw.got) < len(sw.want) {
		p.mu.Unlock()
		return
	}

	// All chunks in hand. Snapshot the pre-switch audio for the cross-mix,
	// then swap the buffer contents in one pass.
	pos := p.mix.Position()
	oldCur, oldNext := p.entriesAroundLocked(pos)

	batch := make([]*buffer.Entry, 0, len(sw.got))
	for _, sc := range sw.got {
		batch = append(batch, &buffer.Entry{Meta: sc.chunk.Meta, Samples: sc.samples})
	}
	if err := p.buf.ReplaceBatch(batch); err != nil {
		p.mu.Unlock()
		p.failSwitch(sw, fmt.Errorf("failed to apply preset chunks: %w", err))
		return
	}

	p.activeSwitch = nil
	session := p.session
	mix := p.mix
	sinkLive := p.sinkStarted && sw.resume == StatePlaying
	ev, ok := p.setStateLocked(sw.resume)
	p.mu.Unlock()

	p.notifyAppend()
	p.emit(ev, ok)

	if !sinkLive {
		// Nothing audible to cross-mix; the switch is complete on apply.
		p.finishSwitch(sw, session)
		return
	}

	mix.BeginSplice(oldCur, oldNext, presetFadeSeconds, func() {
		p.finishSwitch(sw, session)
	})
}

// cancelSwitchLocked abandons an in-flight switch without reverting the
// settings: the new preset simply applies to whatever is fetched next. Used
// by seeks, which supersede a switch. Callers hold p.mu.
func (p *Player) cancelSwitchLocked() {
	if p.activeSwitch == nil {
		return
	}
	for gen, intent := range p.pending {
		if intent.sw != nil {
			delete(p.pending, gen)
		}
	}
	log.Debug().Str("preset", p.activeSwitch.newPreset).Msg("Preset switch superseded")
	p.activeSwitch = nil
}

// entriesAroundLocked returns the buffered entry covering t and its
// overlapping successor. Callers hold p.mu.
func (p *Player) entriesAroundLocked(t float64) (cur, next *buffer.Entry) {
	w, ok := p.buf.WindowAt(t)
	if !ok {
		return nil, nil
	}
	cur = w.Current
	if w.Next != nil {
		next = w.Next
		return cur, next
	}
	if seq, found := p.buf.SequenceAt(t); found {
		next, _ = p.buf.EntryBySequence(seq + 1)
	}
	return cur, next
}

func (p *Player) finishSwitch(sw *presetSwitch, session uuid.UUID) {
	latency := time.Since(sw.started).Milliseconds()
	p.bus.emit(Event{
		Type:      EventPresetSwitched,
		Session:   session,
		OldPreset: sw.oldPreset,
		NewPreset: sw.newPreset,
		LatencyMs: latency,
	})
	log.Debug().
		Str("old", sw.oldPreset).
		Str("new", sw.newPreset).
		Int64("latency_ms", latency).
		Msg("Preset switch completed")
}

// failSwitch abandons a switch, reverts the settings, and restores the
// pre-switch state. The player keeps playing on the old preset.
func (p *Player) failSwitch(sw *presetSwitch, err error) {
	p.mu.Lock()
	if p.activeSwitch == nil || p.activeSwitch.gen != sw.gen {
		p.mu.Unlock()
		return
	}
	p.activeSwitch = nil
	if sw.oldPreset != "" {
		p.settings.Preset = sw.oldPreset
		p.settings.Enabled = true
	} else {
		p.settings.Enabled = false
	}
	session := p.session
	ev, ok := p.setStateLocked(sw.resume)
	p.mu.Unlock()

	log.Warn().Err(err).Str("preset", sw.newPreset).Msg("Preset switch failed, staying on old preset")
	p.emit(ev, ok)
	p.bus.emit(Event{
		Type:    EventError,
		Session: session,
		Err:     fmt.Errorf("preset switch to %q failed: %w", sw.newPreset, err),
		Fatal:   false,
	})
}
