package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkaleva/chunkcast/internal/api"
)

func testChunk() *api.Chunk {
	data := []byte("encoded-audio-payload")
	return &api.Chunk{
		Meta: api.ChunkMetadata{
			StartTime:  10,
			EndTime:    25,
			Sequence:   1,
			Preset:     "warm",
			ByteLength: len(data),
		},
		Data: data,
	}
}

func TestSaveAndGetChunk(t *testing.T) {
	c := NewCacheAt(t.TempDir(), time.Hour)
	chunk := testChunk()

	if err := c.SaveChunk("track-1", chunk); err != nil {
		t.Fatalf("SaveChunk() error = %v", err)
	}

	got := c.GetChunk("track-1", 10, "warm")
	if got == nil {
		t.Fatal("GetChunk() returned nil after save")
	}
	if got.Meta != chunk.Meta {
		t.Errorf("GetChunk().Meta = %+v, want %+v", got.Meta, chunk.Meta)
	}
	if string(got.Data) != string(chunk.Data) {
		t.Errorf("GetChunk().Data = %q, want %q", got.Data, chunk.Data)
	}
}

func TestGetChunkMiss(t *testing.T) {
	c := NewCacheAt(t.TempDir(), time.Hour)

	if got := c.GetChunk("track-1", 10, "warm"); got != nil {
		t.Errorf("GetChunk() on empty cache = %+v, want nil", got)
	}
}

func TestGetChunkKeyedByPresetAndOffset(t *testing.T) {
	c := NewCacheAt(t.TempDir(), time.Hour)
	chunk := testChunk()

	if err := c.SaveChunk("track-1", chunk); err != nil {
		t.Fatalf("SaveChunk() error = %v", err)
	}

	if got := c.GetChunk("track-1", 10, "bright"); got != nil {
		t.Error("GetChunk() hit for a different preset")
	}
	if got := c.GetChunk("track-1", 20, "warm"); got != nil {
		t.Error("GetChunk() hit for a different start offset")
	}
	if got := c.GetChunk("track-2", 10, "warm"); got != nil {
		t.Error("GetChunk() hit for a different track")
	}
}

func TestGetChunkExpired(t *testing.T) {
	dir := t.TempDir()
	c := NewCacheAt(dir, time.Millisecond)
	chunk := testChunk()

	if err := c.SaveChunk("track-1", chunk); err != nil {
		t.Fatalf("SaveChunk() error = %v", err)
	}

	// Backdate the payload file past the expiry window.
	metaPath, dataPath := c.chunkPaths("track-1", 10, "warm")
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(dataPath, old, old); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	if got := c.GetChunk("track-1", 10, "warm"); got != nil {
		t.Error("GetChunk() returned expired chunk")
	}

	if _, err := os.Stat(metaPath); !os.IsNotExist(err) {
		t.Error("expired chunk metadata was not removed")
	}
}

func TestGetChunkLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	c := NewCacheAt(dir, time.Hour)
	chunk := testChunk()

	if err := c.SaveChunk("track-1", chunk); err != nil {
		t.Fatalf("SaveChunk() error = %v", err)
	}

	_, dataPath := c.chunkPaths("track-1", 10, "warm")
	if err := os.WriteFile(dataPath, []byte("truncated"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if got := c.GetChunk("track-1", 10, "warm"); got != nil {
		t.Error("GetChunk() returned chunk with mismatched payload length")
	}
}

func TestCleanExpired(t *testing.T) {
	dir := t.TempDir()
	c := NewCacheAt(dir, time.Minute)

	if err := c.SaveChunk("track-1", testChunk()); err != nil {
		t.Fatalf("SaveChunk() error = %v", err)
	}

	chunkDir := filepath.Join(dir, ChunkSubdir)
	entries, err := os.ReadDir(chunkDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	old := time.Now().Add(-time.Hour)
	for _, entry := range entries {
		path := filepath.Join(chunkDir, entry.Name())
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("Chtimes() error = %v", err)
		}
	}

	if err := c.CleanExpired(); err != nil {
		t.Fatalf("CleanExpired() error = %v", err)
	}

	entries, err = os.ReadDir(chunkDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("CleanExpired() left %d files, want 0", len(entries))
	}
}

func TestCleanExpiredNoDir(t *testing.T) {
	c := NewCacheAt(filepath.Join(t.TempDir(), "missing"), time.Hour)
	if err := c.CleanExpired(); err != nil {
		t.Errorf("CleanExpired() on missing dir error = %v", err)
	}
}
