// Package api provides the HTTP client for the chunk streaming backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout = 30 * time.Second

	// ChunkMetaHeader carries the JSON-encoded chunk metadata alongside the
	// opaque audio payload.
	ChunkMetaHeader = "X-Chunk-Metadata"
)

// TrackMetadata holds the per-track static facts returned by the backend.
// Immutable once fetched; replaced wholesale when a new track is initialized.
type TrackMetadata struct {
	TrackID       string  `json:"trackId"`
	Duration      float64 `json:"duration"`
	ChunkDuration float64 `json:"chunkDuration"`
	ChunkInterval float64 `json:"chunkInterval"`
	SampleRate    int     `json:"sampleRate"`
	Channels      int     `json:"channels"`
}

// Validate checks the metadata against the chunk-geometry contract. A stream
// that fails validation is a fatal error, not something to play around.
func (m *TrackMetadata) Validate() error {
	switch {
	case m.TrackID == "":
		return errors.New("track metadata missing track id")
	case m.Duration <= 0:
		return fmt.Errorf("invalid duration %.3f", m.Duration)
	case m.ChunkInterval <= 0:
		return fmt.Errorf("invalid chunk interval %.3f", m.ChunkInterval)
	case m.ChunkDuration <= m.ChunkInterval:
		return fmt.Errorf("chunk duration %.3f does not exceed interval %.3f", m.ChunkDuration, m.ChunkInterval)
	case m.SampleRate <= 0:
		return fmt.Errorf("invalid sample rate %d", m.SampleRate)
	case m.Channels != 1 && m.Channels != 2:
		return fmt.Errorf("unsupported channel count %d", m.Channels)
	}
	return nil
}

// ChunkMetadata holds the per-chunk facts delivered with each payload.
type ChunkMetadata struct {
	StartTime  float64 `json:"startTime"`
	EndTime    float64 `json:"endTime"`
	Sequence   int     `json:"sequence"`
	Preset     string  `json:"preset"`
	ByteLength int     `json:"byteLength"`
}

// Chunk is a fetched audio chunk: metadata plus the opaque encoded payload.
type Chunk struct {
	Meta ChunkMetadata
	Data []byte
}

// StatusError is an HTTP-level failure from the backend.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Status)
}

// IsNonRetryable reports whether the error is an HTTP failure that retrying
// cannot fix.
func IsNonRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case 401, 403, 404, 410:
			return true
		}
	}
	return false
}

// Client is the HTTP client for the chunk retrieval and track metadata
// endpoints.
type Client struct {
	client *resty.Client
}

// NewClient creates a backend client with sensible defaults.
func NewClient(baseURL string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(defaultTimeout),
	}
}

// GetTrackMetadata fetches and validates the static metadata for a track.
func (c *Client) GetTrackMetadata(ctx context.Context, trackID string) (*TrackMetadata, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/tracks/%s/metadata", trackID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch track metadata: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, &StatusError{Code: resp.StatusCode(), Status: resp.Status()}
	}

	var meta TrackMetadata
	if err := json.Unmarshal(resp.Body(), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse track metadata: %w", err)
	}

	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("malformed track metadata for %s: %w", trackID, err)
	}

	return &meta, nil
}

// FetchChunk fetches the audio chunk covering startTime under the given
// preset. The payload is opaque bytes; metadata arrives in a response header.
// A short or metadata-less response is treated as a fetch failure.
func (c *Client) FetchChunk(ctx context.Context, trackID string, startTime float64, preset string) (*Chunk, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("start", fmt.Sprintf("%.3f", startTime)).
		SetQueryParam("preset", preset).
		Get(fmt.Sprintf("/tracks/%s/chunk", trackID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunk at %.3fs: %w", startTime, err)
	}

	if !resp.IsSuccess() {
		return nil, &StatusError{Code: resp.StatusCode(), Status: resp.Status()}
	}

	header := resp.Header().Get(ChunkMetaHeader)
	if header == "" {
		return nil, fmt.Errorf("chunk response missing %s header", ChunkMetaHeader)
	}

	var meta ChunkMetadata
	if err := json.Unmarshal([]byte(header), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse chunk metadata: %w", err)
	}

	body := resp.Body()
	if meta.ByteLength <= 0 || len(body) < meta.ByteLength {
		return nil, fmt.Errorf("short chunk response: got %d bytes, metadata says %d", len(body), meta.ByteLength)
	}
	if meta.EndTime <= meta.StartTime {
		return nil, fmt.Errorf("malformed chunk metadata: end %.3f <= start %.3f", meta.EndTime, meta.StartTime)
	}

	return &Chunk{Meta: meta, Data: body[:meta.ByteLength]}, nil
}
