package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
)

func setupTestServer(handler http.HandlerFunc) (*httptest.Server, *Client) {
	server := httptest.NewServer(handler)
	client := &Client{
		client: resty.New().SetBaseURL(server.URL),
	}
	return server, client
}

func validMetadata() TrackMetadata {
	return TrackMetadata{
		TrackID:       "track-1",
		Duration:      200,
		ChunkDuration: 15,
		ChunkInterval: 10,
		SampleRate:    44100,
		Channels:      2,
	}
}

func TestGetTrackMetadata(t *testing.T) {
	want := validMetadata()

	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tracks/track-1/metadata" {
			t.Errorf("Expected path /tracks/track-1/metadata, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(want)
	})
	defer server.Close()

	got, err := client.GetTrackMetadata(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("GetTrackMetadata() error = %v", err)
	}

	if *got != want {
		t.Errorf("GetTrackMetadata() = %+v, want %+v", got, want)
	}
}

func TestGetTrackMetadataMalformed(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TrackMetadata)
	}{
		{"missing_id", func(m *TrackMetadata) { m.TrackID = "" }},
		{"zero_duration", func(m *TrackMetadata) { m.Duration = 0 }},
		{"no_overlap", func(m *TrackMetadata) { m.ChunkDuration = m.ChunkInterval }},
		{"zero_interval", func(m *TrackMetadata) { m.ChunkInterval = 0 }},
		{"bad_sample_rate", func(m *TrackMetadata) { m.SampleRate = -1 }},
		{"bad_channels", func(m *TrackMetadata) { m.Channels = 6 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta := validMetadata()
			tc.mutate(&meta)

			server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(meta)
			})
			defer server.Close()

			if _, err := client.GetTrackMetadata(context.Background(), "track-1"); err == nil {
				t.Error("GetTrackMetadata() succeeded on malformed metadata")
			}
		})
	}
}

func TestGetTrackMetadataHTTPError(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	defer server.Close()

	_, err := client.GetTrackMetadata(context.Background(), "missing")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("GetTrackMetadata() error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("StatusError.Code = %d, want 404", statusErr.Code)
	}
}

func chunkHandler(t *testing.T, meta ChunkMetadata, payload []byte) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		header, err := json.Marshal(meta)
		if err != nil {
			t.Fatalf("marshal chunk metadata: %v", err)
		}
		w.Header().Set(ChunkMetaHeader, string(header))
		_, _ = w.Write(payload)
	}
}

func TestFetchChunk(t *testing.T) {
	payload := []byte("opaque-audio-bytes")
	meta := ChunkMetadata{
		StartTime:  10,
		EndTime:    25,
		Sequence:   1,
		Preset:     "warm",
		ByteLength: len(payload),
	}

	var gotQuery map[string]string
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"start":  r.URL.Query().Get("start"),
			"preset": r.URL.Query().Get("preset"),
		}
		chunkHandler(t, meta, payload)(w, r)
	})
	defer server.Close()

	chunk, err := client.FetchChunk(context.Background(), "track-1", 10, "warm")
	if err != nil {
		t.Fatalf("FetchChunk() error = %v", err)
	}

	if chunk.Meta != meta {
		t.Errorf("chunk.Meta = %+v, want %+v", chunk.Meta, meta)
	}
	if string(chunk.Data) != string(payload) {
		t.Errorf("chunk.Data = %q, want %q", chunk.Data, payload)
	}
	if gotQuery["start"] != "10.000" {
		t.Errorf("start query = %q, want %q", gotQuery["start"], "10.000")
	}
	if gotQuery["preset"] != "warm" {
		t.Errorf("preset query = %q, want %q", gotQuery["preset"], "warm")
	}
}

func TestFetchChunkShortResponse(t *testing.T) {
	meta := ChunkMetadata{StartTime: 0, EndTime: 15, Sequence: 0, Preset: "warm", ByteLength: 100}

	server, client := setupTestServer(chunkHandler(t, meta, []byte("too short")))
	defer server.Close()

	if _, err := client.FetchChunk(context.Background(), "track-1", 0, "warm"); err == nil {
		t.Error("FetchChunk() succeeded on short response")
	}
}

func TestFetchChunkMissingMetadataHeader(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload without metadata"))
	})
	defer server.Close()

	if _, err := client.FetchChunk(context.Background(), "track-1", 0, "warm"); err == nil {
		t.Error("FetchChunk() succeeded without metadata header")
	}
}

func TestFetchChunkCancelled(t *testing.T) {
	server, client := setupTestServer(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchChunk(ctx, "track-1", 0, "warm")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FetchChunk() error = %v, want context.Canceled", err)
	}
}

func TestIsNonRetryable(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{&StatusError{Code: 401}, true},
		{&StatusError{Code: 403}, true},
		{&StatusError{Code: 404}, true},
		{&StatusError{Code: 410}, true},
		{&StatusError{Code: 500}, false},
		{&StatusError{Code: 503}, false},
		{errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		if got := IsNonRetryable(tt.err); got != tt.expected {
			t.Errorf("IsNonRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
		}
	}
}
