// Package buffer owns the decoded-chunk pipeline: it tracks which time ranges
// are buffered, enforces append ordering, and evicts ranges the playhead has
// left behind. Nothing outside this package mutates the buffered set.
package buffer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mkaleva/chunkcast/internal/api"
	"github.com/rs/zerolog/log"
)

var (
	// ErrOutOfOrder is returned when an append does not extend the buffered
	// edge, e.g. a stale chunk from a cancelled-then-restarted fetch.
	ErrOutOfOrder = errors.New("chunk append out of sequence order")
	// ErrGap is returned when an append would leave a hole in coverage.
	ErrGap = errors.New("chunk append would create a coverage gap")
)

// Entry is a buffered chunk: its metadata plus decoded stereo samples. The
// sample slice is immutable after append; readers may hold it without a lock.
type Entry struct {
	Meta    api.ChunkMetadata
	Samples [][2]float64
}

// FrameAt returns the decoded frame at absolute stream time t, or a zero
// frame when t is outside the chunk.
func (e *Entry) FrameAt(t float64, sampleRate int) [2]float64 {
	if t < e.Meta.StartTime {
		return [2]float64{}
	}
	idx := int((t - e.Meta.StartTime) * float64(sampleRate))
	if idx < 0 || idx >= len(e.Samples) {
		return [2]float64{}
	}
	return e.Samples[idx]
}

// Window describes the buffered audio at an instant: the chunk under t and,
// inside a crossfade region, the overlapping successor.
type Window struct {
	Current *Entry
	Next    *Entry
	// ValidUntil is the time at which the window composition changes and the
	// caller must look it up again.
	ValidUntil float64
}

// Manager tracks the buffered chunk entries for one stream session.
type Manager struct {
	mu    sync.Mutex
	track api.TrackMetadata

	// Ordered by sequence, contiguous. entries[0] may be at most one chunk
	// fully behind the playhead (small-rewind allowance).
	entries []*Entry
}

// NewManager creates a Manager for the given (already validated) track.
func NewManager(track api.TrackMetadata) *Manager {
	return &Manager{track: track}
}

// Track returns the stream metadata this manager was built for.
func (m *Manager) Track() api.TrackMetadata {
	return m.track
}

// Append adds a decoded chunk. The first append after creation or Reset is
// accepted at any sequence; afterwards appends must extend the buffered edge
// by exactly one sequence number, with matching time coverage.
func (m *Manager) Append(meta api.ChunkMetadata, samples [][2]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) > 0 {
		last := m.entries[len(m.entries)-1].Meta
		if meta.Sequence != last.Sequence+1 {
			return fmt.Errorf("sequence %d after %d: %w", meta.Sequence, last.Sequence, ErrOutOfOrder)
		}
		if meta.StartTime > last.EndTime {
			return fmt.Errorf("chunk [%.3f, %.3f) after edge %.3f: %w", meta.StartTime, meta.EndTime, last.EndTime, ErrGap)
		}
	}

	m.entries = append(m.entries, &Entry{Meta: meta, Samples: samples})
	log.Debug().
		Int("seq", meta.Sequence).
		Float64("start", meta.StartTime).
		Float64("end", meta.EndTime).
		Int("buffered", len(m.entries)).
		Msg("Chunk appended")
	return nil
}

// Replace swaps the samples and metadata of an already-buffered sequence.
// Used by preset switching, where the same time region is re-fetched under a
// new preset. Replacing an absent sequence is an error.
func (m *Manager) Replace(meta api.ChunkMetadata, samples [][2]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entries {
		if e.Meta.Sequence == meta.Sequence {
			if meta.StartTime != e.Meta.StartTime || meta.EndTime != e.Meta.EndTime {
				return fmt.Errorf("replacement chunk [%.3f, %.3f) does not match buffered [%.3f, %.3f)",
					meta.StartTime, meta.EndTime, e.Meta.StartTime, e.Meta.EndTime)
			}
			m.entries[i] = &Entry{Meta: meta, Samples: samples}
			log.Debug().Int("seq", meta.Sequence).Str("preset", meta.Preset).Msg("Chunk replaced")
			return nil
		}
	}
	return fmt.Errorf("sequence %d not buffered", meta.Sequence)
}

// ReplaceBatch applies a set of re-fetched chunks in one step: each entry
// either replaces a buffered sequence with matching time coverage or extends
// the buffered edge. All-or-nothing; on error the buffered set is unchanged.
func (m *Manager) ReplaceBatch(entries []*Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := append([]*Entry(nil), entries...)
	sort.Slice(batch, func(i, j int) bool {
		return batch[i].Meta.Sequence < batch[j].Meta.Sequence
	})

	staged := append([]*Entry(nil), m.entries...)
	for _, e := range batch {
		idx := -1
		for i, cur := range staged {
			if cur.Meta.Sequence == e.Meta.Sequence {
				idx = i
				break
			}
		}
		if idx >= 0 {
			cur := staged[idx].Meta
			if e.Meta.StartTime != cur.StartTime || e.Meta.EndTime != cur.EndTime {
				return fmt.Errorf("replacement chunk [%.3f, %.3f) does not match buffered [%.3f, %.3f)",
					e.Meta.StartTime, e.Meta.EndTime, cur.StartTime, cur.EndTime)
			}
			staged[idx] = e
			continue
		}
		if len(staged) > 0 {
			last := staged[len(staged)-1].Meta
			if e.Meta.Sequence != last.Sequence+1 {
				return fmt.Errorf("sequence %d after %d: %w", e.Meta.Sequence, last.Sequence, ErrOutOfOrder)
			}
			if e.Meta.StartTime > last.EndTime {
				return fmt.Errorf("chunk [%.3f, %.3f) after edge %.3f: %w", e.Meta.StartTime, e.Meta.EndTime, last.EndTime, ErrGap)
			}
		}
		staged = append(staged, e)
	}

	m.entries = staged
	log.Debug().Int("chunks", len(batch)).Msg("Chunk batch applied")
	return nil
}

// Reset drops all buffered entries. Used by seeks into unbuffered regions.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
}

// Covers reports whether t falls inside the buffered range.
func (m *Manager) Covers(t float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == 0 {
		return false
	}
	return t >= m.entries[0].Meta.StartTime && t < m.entries[len(m.entries)-1].Meta.EndTime
}

// BufferedUntil returns the end of the buffered range, or 0 when empty.
func (m *Manager) BufferedUntil() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == 0 {
		return 0
	}
	return m.entries[len(m.entries)-1].Meta.EndTime
}

// EdgeSequence returns the sequence number at the buffered edge and whether
// any chunk is buffered at all.
func (m *Manager) EdgeSequence() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == 0 {
		return 0, false
	}
	return m.entries[len(m.entries)-1].Meta.Sequence, true
}

// SequenceAt returns the sequence of the buffered chunk whose nominal range
// contains t. Inside a crossfade region the earlier chunk wins, matching what
// the listener is still predominantly hearing at region entry.
func (m *Manager) SequenceAt(t float64) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if t >= e.Meta.StartTime && t < e.Meta.EndTime {
			return e.Meta.Sequence, true
		}
	}
	return 0, false
}

// EntryBySequence returns the buffered entry with the given sequence.
func (m *Manager) EntryBySequence(seq int) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.Meta.Sequence == seq {
			return e, true
		}
	}
	return nil, false
}

// WindowAt returns the entries covering t. ok is false when t is unbuffered,
// which the caller treats as an underrun (or a pre-fetch miss after a seek).
func (m *Manager) WindowAt(t float64) (Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entries {
		if t < e.Meta.StartTime || t >= e.Meta.EndTime {
			continue
		}

		w := Window{Current: e, ValidUntil: e.Meta.EndTime}
		if i+1 < len(m.entries) {
			next := m.entries[i+1]
			if next.Meta.StartTime < e.Meta.EndTime {
				if t >= next.Meta.StartTime {
					// Inside the crossfade region: both chunks are live.
					w.Next = next
				} else {
					w.ValidUntil = next.Meta.StartTime
				}
			}
		}
		return w, true
	}
	return Window{}, false
}

// Evict removes entries fully behind the playhead, keeping at most one so
// small rewinds stay cheap. The entry containing the playhead is never
// evicted, rewind or not.
func (m *Manager) Evict(playhead float64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Index of the first entry the playhead has not fully passed.
	firstLive := len(m.entries)
	for i, e := range m.entries {
		if e.Meta.EndTime > playhead {
			firstLive = i
			break
		}
	}

	// Keep one fully-consumed entry behind firstLive.
	cut := firstLive - 1
	if cut <= 0 {
		return 0
	}

	evicted := cut
	m.entries = append([]*Entry(nil), m.entries[cut:]...)
	log.Debug().Int("evicted", evicted).Float64("playhead", playhead).Msg("Stale chunks evicted")
	return evicted
}

// Len returns the number of buffered entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
