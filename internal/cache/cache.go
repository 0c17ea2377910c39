// Package cache provides disk-based caching of fetched audio chunks, keyed by
// track, start offset, and preset. A cache hit skips the network entirely,
// which matters most for preset switches back to a recently used preset.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mkaleva/chunkcast/internal/api"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultExpiry is how long cached chunks are valid.
	DefaultExpiry = 24 * time.Hour
	// ChunkSubdir is the subdirectory for cached chunk payloads.
	ChunkSubdir = "chunks"
	// AppName is used for the cache directory name.
	AppName = "chunkcast"
)

// Cache manages disk-based caching of chunk payloads and their metadata.
type Cache struct {
	baseDir string
	expiry  time.Duration
}

// NewCache creates a new Cache instance with the default expiry.
func NewCache() (*Cache, error) {
	cacheDir, err := GetCacheDir()
	if err != nil {
		return nil, err
	}

	return &Cache{
		baseDir: cacheDir,
		expiry:  DefaultExpiry,
	}, nil
}

// NewCacheAt creates a Cache rooted at an explicit directory.
func NewCacheAt(dir string, expiry time.Duration) *Cache {
	return &Cache{baseDir: dir, expiry: expiry}
}

// GetCacheDir returns the platform-specific cache directory for the application.
func GetCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}

	return filepath.Join(userCacheDir, AppName), nil
}

func (c *Cache) ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

func chunkKey(trackID string, startTime float64, preset string) string {
	hash := md5.Sum([]byte(fmt.Sprintf("%s|%.3f|%s", trackID, startTime, preset)))
	return hex.EncodeToString(hash[:])
}

func (c *Cache) chunkPaths(trackID string, startTime float64, preset string) (metaPath, dataPath string) {
	key := chunkKey(trackID, startTime, preset)
	dir := filepath.Join(c.baseDir, ChunkSubdir)
	return filepath.Join(dir, key+".json"), filepath.Join(dir, key+".bin")
}

// GetChunk retrieves a cached chunk. Returns nil if not found, expired, or
// unreadable; a cache miss is never an error worth surfacing.
func (c *Cache) GetChunk(trackID string, startTime float64, preset string) *api.Chunk {
	metaPath, dataPath := c.chunkPaths(trackID, startTime, preset)

	info, err := os.Stat(dataPath)
	if err != nil {
		return nil
	}

	if time.Since(info.ModTime()) > c.expiry {
		if err := os.Remove(dataPath); err != nil {
			log.Debug().Err(err).Str("file", dataPath).Msg("Failed to remove expired cache file")
		}
		_ = os.Remove(metaPath)
		return nil
	}

	metaRaw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil
	}

	var meta api.ChunkMetadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		log.Debug().Err(err).Str("file", metaPath).Msg("Failed to decode cached chunk metadata")
		return nil
	}

	data, err := os.ReadFile(dataPath)
	if err != nil {
		return nil
	}
	if len(data) != meta.ByteLength {
		log.Debug().Str("file", dataPath).Msg("Cached chunk payload length mismatch, discarding")
		_ = os.Remove(dataPath)
		_ = os.Remove(metaPath)
		return nil
	}

	return &api.Chunk{Meta: meta, Data: data}
}

// SaveChunk stores a fetched chunk in the cache.
func (c *Cache) SaveChunk(trackID string, chunk *api.Chunk) error {
	dir := filepath.Join(c.baseDir, ChunkSubdir)
	if err := c.ensureDir(dir); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	metaPath, dataPath := c.chunkPaths(trackID, chunk.Meta.StartTime, chunk.Meta.Preset)

	metaRaw, err := json.Marshal(chunk.Meta)
	if err != nil {
		return fmt.Errorf("failed to encode chunk metadata: %w", err)
	}

	if err := os.WriteFile(dataPath, chunk.Data, 0644); err != nil {
		return fmt.Errorf("failed to write chunk payload: %w", err)
	}
	if err := os.WriteFile(metaPath, metaRaw, 0644); err != nil {
		_ = os.Remove(dataPath)
		return fmt.Errorf("failed to write chunk metadata: %w", err)
	}

	return nil
}

// CleanExpired removes cache files older than the expiry duration.
func (c *Cache) CleanExpired() error {
	dir := filepath.Join(c.baseDir, ChunkSubdir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()
	var removed, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to get file info")
			continue
		}

		if now.Sub(info.ModTime()) > c.expiry {
			filePath := filepath.Join(dir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove expired cache file")
				failed++
			} else {
				removed++
			}
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}

	return nil
}
