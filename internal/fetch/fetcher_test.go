package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mkaleva/chunkcast/internal/api"
	"github.com/mkaleva/chunkcast/internal/cache"
	"github.com/mkaleva/chunkcast/internal/config"
)

func fastFetchConfig() config.Fetch {
	return config.Fetch{
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	}
}

// chunkServer serves valid chunks, optionally failing the first n requests.
func chunkServer(t *testing.T, failFirst int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if int(n) <= failFirst {
			http.Error(w, "transient", http.StatusInternalServerError)
			return
		}

		start, _ := strconv.ParseFloat(r.URL.Query().Get("start"), 64)
		payload := []byte(fmt.Sprintf("chunk-at-%.0f", start))
		meta := api.ChunkMetadata{
			StartTime:  start,
			EndTime:    start + 15,
			Sequence:   int(start / 10),
			Preset:     r.URL.Query().Get("preset"),
			ByteLength: len(payload),
		}
		header, _ := json.Marshal(meta)
		w.Header().Set(api.ChunkMetaHeader, string(header))
		_, _ = w.Write(payload)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func waitResult(t *testing.T, f *Fetcher) Result {
	t.Helper()
	select {
	case res := <-f.Results():
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch result")
		return Result{}
	}
}

func TestRequestDeliversChunk(t *testing.T) {
	server, _ := chunkServer(t, 0)
	f := NewFetcher(api.NewClient(server.URL), fastFetchConfig(), nil)
	defer f.Close()

	gen := f.Request(context.Background(), SlotCurrent, "track-1", 10, "warm")

	res := waitResult(t, f)
	if res.Err != nil {
		t.Fatalf("Result.Err = %v", res.Err)
	}
	if res.Generation != gen {
		t.Errorf("Result.Generation = %d, want %d", res.Generation, gen)
	}
	if res.Slot != SlotCurrent {
		t.Errorf("Result.Slot = %v, want SlotCurrent", res.Slot)
	}
	if res.Chunk.Meta.StartTime != 10 {
		t.Errorf("chunk start = %v, want 10", res.Chunk.Meta.StartTime)
	}
}

func TestRequestRetriesTransientFailures(t *testing.T) {
	server, calls := chunkServer(t, 2)
	f := NewFetcher(api.NewClient(server.URL), fastFetchConfig(), nil)
	defer f.Close()

	f.Request(context.Background(), SlotCurrent, "track-1", 0, "warm")

	res := waitResult(t, f)
	if res.Err != nil {
		t.Fatalf("Result.Err = %v after retries", res.Err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("backend called %d times, want 3", got)
	}
}

func TestRequestExhaustsRetries(t *testing.T) {
	server, calls := chunkServer(t, 100)
	f := NewFetcher(api.NewClient(server.URL), fastFetchConfig(), nil)
	defer f.Close()

	f.Request(context.Background(), SlotCurrent, "track-1", 0, "warm")

	res := waitResult(t, f)
	if res.Err == nil {
		t.Fatal("Result.Err = nil, want exhausted-retries error")
	}
	// MaxRetries=3 means 1 initial attempt + 3 retries.
	if got := calls.Load(); got != 4 {
		t.Errorf("backend called %d times, want 4", got)
	}
}

func TestRequestDoesNotRetryNonRetryable(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	f := NewFetcher(api.NewClient(server.URL), fastFetchConfig(), nil)
	defer f.Close()

	f.Request(context.Background(), SlotCurrent, "track-1", 0, "warm")

	res := waitResult(t, f)
	if !api.IsNonRetryable(res.Err) {
		t.Fatalf("Result.Err = %v, want non-retryable status error", res.Err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("backend called %d times, want 1", got)
	}
}

func TestRequestSupersedesSameSlot(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("start")
		if start == "50.000" {
			// Hold the superseded fetch until after the new one lands.
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
		}
		payload := []byte("data")
		meta := api.ChunkMetadata{StartTime: 80, EndTime: 95, Sequence: 8, Preset: "warm", ByteLength: len(payload)}
		header, _ := json.Marshal(meta)
		w.Header().Set(api.ChunkMetaHeader, string(header))
		_, _ = w.Write(payload)
	}))
	defer server.Close()
	defer close(release)

	f := NewFetcher(api.NewClient(server.URL), fastFetchConfig(), nil)
	defer f.Close()

	f.Request(context.Background(), SlotCurrent, "track-1", 50, "warm")
	gen2 := f.Request(context.Background(), SlotCurrent, "track-1", 80, "warm")

	res := waitResult(t, f)
	if res.Generation != gen2 {
		t.Fatalf("first result generation = %d, want superseding request %d", res.Generation, gen2)
	}
	if res.Err != nil {
		t.Fatalf("Result.Err = %v", res.Err)
	}

	// The superseded fetch must never deliver.
	select {
	case res := <-f.Results():
		t.Fatalf("superseded fetch delivered result: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelAllSilentlyDiscards(t *testing.T) {
	started := make(chan struct{}, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-r.Context().Done()
	}))
	defer server.Close()

	f := NewFetcher(api.NewClient(server.URL), fastFetchConfig(), nil)

	f.Request(context.Background(), SlotCurrent, "track-1", 0, "warm")
	f.Request(context.Background(), SlotLookahead, "track-1", 10, "warm")
	<-started
	<-started

	f.Close()

	select {
	case res := <-f.Results():
		t.Fatalf("cancelled fetch delivered result: %+v", res)
	default:
	}
}

func TestFetchUsesDiskCache(t *testing.T) {
	server, calls := chunkServer(t, 0)
	chunks := cache.NewCacheAt(t.TempDir(), time.Hour)
	f := NewFetcher(api.NewClient(server.URL), fastFetchConfig(), chunks)
	defer f.Close()

	f.Request(context.Background(), SlotCurrent, "track-1", 10, "warm")
	first := waitResult(t, f)
	if first.Err != nil {
		t.Fatalf("first fetch error = %v", first.Err)
	}

	f.Request(context.Background(), SlotCurrent, "track-1", 10, "warm")
	second := waitResult(t, f)
	if second.Err != nil {
		t.Fatalf("second fetch error = %v", second.Err)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("backend called %d times, want 1 (second fetch should hit cache)", got)
	}
	if second.Chunk.Meta != first.Chunk.Meta {
		t.Errorf("cached chunk metadata = %+v, want %+v", second.Chunk.Meta, first.Chunk.Meta)
	}
}

func TestBackoffDelayBounded(t *testing.T) {
	base := 100 * time.Millisecond
	ceiling := time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{10, time.Second},
	}

	for _, tt := range tests {
		if got := backoffDelay(base, ceiling, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
