// Package timing provides the pure chunk-timing and crossfade math shared by
// the playback engine and any UI that renders overlay regions. Both must use
// the same functions, otherwise visualization and actual mixing can disagree.
package timing

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoOverlap is returned when the chunk geometry leaves no crossfade window.
var ErrNoOverlap = errors.New("chunk duration must exceed chunk interval")

// Region is the time window during which two consecutive chunks are blended.
type Region struct {
	Start float64
	End   float64
}

// Duration returns the length of the region in seconds.
func (r Region) Duration() float64 {
	return r.End - r.Start
}

// Contains reports whether t falls inside the region.
func (r Region) Contains(t float64) bool {
	return t >= r.Start && t < r.End
}

// Progress returns how far t is through the region, clamped to [0, 1].
func (r Region) Progress(t float64) float64 {
	if r.End <= r.Start {
		return 0
	}
	p := (t - r.Start) / (r.End - r.Start)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Regions computes the ordered crossfade regions for a stream. Region k (k>=1)
// starts at chunkInterval*k and ends overlap seconds later, truncated at the
// stream duration. A stream no longer than one interval has no regions.
func Regions(duration, chunkInterval, chunkDuration float64) ([]Region, error) {
	if chunkInterval <= 0 {
		return nil, fmt.Errorf("invalid chunk interval %.3f: %w", chunkInterval, ErrNoOverlap)
	}
	if chunkDuration <= chunkInterval {
		return nil, fmt.Errorf("chunk duration %.3f <= interval %.3f: %w", chunkDuration, chunkInterval, ErrNoOverlap)
	}

	if duration <= chunkInterval {
		return nil, nil
	}

	overlap := chunkDuration - chunkInterval
	var regions []Region
	for k := 1; ; k++ {
		start := chunkInterval * float64(k)
		if start >= duration {
			break
		}
		end := start + overlap
		if end > duration {
			end = duration
		}
		regions = append(regions, Region{Start: start, End: end})
	}
	return regions, nil
}

// RegionAt returns the crossfade region containing t, if any.
func RegionAt(t, duration, chunkInterval, chunkDuration float64) (Region, bool) {
	regions, err := Regions(duration, chunkInterval, chunkDuration)
	if err != nil {
		return Region{}, false
	}
	for _, r := range regions {
		if r.Contains(t) {
			return r, true
		}
	}
	return Region{}, false
}

// ChunkStart returns the nominal start time of the chunk covering t.
func ChunkStart(t, chunkInterval float64) float64 {
	if t <= 0 || chunkInterval <= 0 {
		return 0
	}
	return math.Floor(t/chunkInterval) * chunkInterval
}

// SequenceFor returns the sequence number of the chunk starting at startTime.
// Chunk k starts at chunkInterval*k, so this is the inverse of that mapping.
func SequenceFor(startTime, chunkInterval float64) int {
	if startTime <= 0 || chunkInterval <= 0 {
		return 0
	}
	return int(math.Floor(startTime/chunkInterval + 0.5))
}
