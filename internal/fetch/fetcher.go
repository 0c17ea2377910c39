// Package fetch coordinates cancellable chunk fetches. The engine keeps at
// most two logical fetches alive at a time, one for the chunk under the
// playhead and one look-ahead; a new request for a slot supersedes whatever
// that slot had in flight.
package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mkaleva/chunkcast/internal/api"
	"github.com/mkaleva/chunkcast/internal/cache"
	"github.com/mkaleva/chunkcast/internal/config"
	"github.com/rs/zerolog/log"
)

// Slot identifies a logical fetch position.
type Slot int

const (
	SlotCurrent Slot = iota
	SlotLookahead
	slotCount
)

func (s Slot) String() string {
	switch s {
	case SlotCurrent:
		return "current"
	case SlotLookahead:
		return "lookahead"
	default:
		return "unknown"
	}
}

// Result is the outcome of a fetch delivered to the engine. Generation lets
// the consumer discard results from requests it has since superseded.
type Result struct {
	Slot       Slot
	Generation uint64
	Chunk      *api.Chunk
	Err        error
}

type inflight struct {
	cancel     context.CancelFunc
	generation uint64
}

// Fetcher issues chunk fetches with bounded exponential backoff and per-slot
// supersession. Cancelled fetches deliver nothing; they are not errors.
type Fetcher struct {
	client *api.Client
	cfg    config.Fetch
	chunks *cache.Cache // optional, nil disables disk caching

	results chan Result

	mu       sync.Mutex
	inflight [slotCount]*inflight
	nextGen  uint64
	wg       sync.WaitGroup
}

// NewFetcher creates a Fetcher over the given backend client. chunks may be
// nil to disable the disk cache.
func NewFetcher(client *api.Client, cfg config.Fetch, chunks *cache.Cache) *Fetcher {
	return &Fetcher{
		client:  client,
		cfg:     cfg,
		chunks:  chunks,
		results: make(chan Result, 2*int(slotCount)),
	}
}

// Results returns the channel on which fetch outcomes are delivered.
func (f *Fetcher) Results() <-chan Result {
	return f.results
}

// Request starts a fetch for the slot, cancelling any fetch already in flight
// there, and returns the generation of the new request. The parent context
// bounds the whole fetch including retries.
func (f *Fetcher) Request(parent context.Context, slot Slot, trackID string, startTime float64, preset string) uint64 {
	ctx, cancel := context.WithCancel(parent)

	f.mu.Lock()
	if prev := f.inflight[slot]; prev != nil {
		prev.cancel()
	}
	f.nextGen++
	gen := f.nextGen
	f.inflight[slot] = &inflight{cancel: cancel, generation: gen}
	f.wg.Add(1)
	f.mu.Unlock()

	log.Debug().
		Str("slot", slot.String()).
		Uint64("gen", gen).
		Float64("start", startTime).
		Str("preset", preset).
		Msg("Chunk fetch requested")

	go f.run(ctx, cancel, slot, gen, trackID, startTime, preset)
	return gen
}

func (f *Fetcher) run(ctx context.Context, cancel context.CancelFunc, slot Slot, gen uint64, trackID string, startTime float64, preset string) {
	defer f.wg.Done()
	defer cancel()

	chunk, err := f.fetchWithRetry(ctx, trackID, startTime, preset)
	if ctx.Err() != nil {
		// Superseded or shut down. Silently discard whatever we have.
		log.Debug().Str("slot", slot.String()).Uint64("gen", gen).Msg("Chunk fetch cancelled")
		return
	}

	select {
	case f.results <- Result{Slot: slot, Generation: gen, Chunk: chunk, Err: err}:
	case <-ctx.Done():
	}
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, trackID string, startTime float64, preset string) (*api.Chunk, error) {
	if f.chunks != nil {
		if chunk := f.chunks.GetChunk(trackID, startTime, preset); chunk != nil {
			log.Debug().Float64("start", startTime).Str("preset", preset).Msg("Chunk cache hit")
			return chunk, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(f.cfg.BackoffBase, f.cfg.BackoffCap, attempt)
			log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Chunk fetch failed, retrying")

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		chunk, err := f.client.FetchChunk(ctx, trackID, startTime, preset)
		if err == nil {
			if f.chunks != nil {
				if err := f.chunks.SaveChunk(trackID, chunk); err != nil {
					log.Debug().Err(err).Msg("Failed to cache chunk")
				}
			}
			return chunk, nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if api.IsNonRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// backoffDelay returns the bounded exponential delay before the given attempt.
func backoffDelay(base, ceiling time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if ceiling > 0 && delay >= ceiling {
			return ceiling
		}
	}
	if ceiling > 0 && delay > ceiling {
		return ceiling
	}
	return delay
}

// Cancel aborts the in-flight fetch for a single slot, if any.
func (f *Fetcher) Cancel(slot Slot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fl := f.inflight[slot]; fl != nil {
		fl.cancel()
		f.inflight[slot] = nil
	}
}

// CancelAll aborts every in-flight fetch. Used by seek and destroy.
func (f *Fetcher) CancelAll() {
	f.mu.Lock()
	for i := range f.inflight {
		if fl := f.inflight[i]; fl != nil {
			fl.cancel()
			f.inflight[i] = nil
		}
	}
	f.mu.Unlock()
}

// Close cancels everything and waits for fetch goroutines to drain.
func (f *Fetcher) Close() {
	f.CancelAll()
	f.wg.Wait()
}
