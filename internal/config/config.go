package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	AppName        = "ChunkCast"
	AppDescription = "Chunked streaming audio playback engine"

	ConfigDir      = ".config/chunkcast"
	ConfigFileName = "config.yml"

	DefaultVolume    = 70
	MinVolume        = 0
	MaxVolume        = 100
	DefaultIntensity = 0.5
	DefaultPreset    = "warm"
	DefaultAPIURL    = "http://localhost:8090"
)

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/mkaleva/chunkcast/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// ClampIntensity ensures enhancement intensity is within [0, 1].
func ClampIntensity(intensity float64) float64 {
	if intensity < 0 {
		return 0
	}
	if intensity > 1 {
		return 1
	}
	return intensity
}

// Fetch holds the retry and backoff tuning for chunk fetches.
type Fetch struct {
	MaxRetries  int           `yaml:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`
}

// Enhancement holds the audio enhancement settings pushed into the engine.
type Enhancement struct {
	Enabled   bool    `yaml:"enabled"`
	Preset    string  `yaml:"preset"`
	Intensity float64 `yaml:"intensity"`
}

type Config struct {
	Volume      int         `yaml:"volume"`
	LastTrack   string      `yaml:"last_track"`
	APIBaseURL  string      `yaml:"api_base_url"`
	Envelope    string      `yaml:"crossfade_envelope"`
	Enhancement Enhancement `yaml:"enhancement"`
	Fetch       Fetch       `yaml:"fetch"`
	CacheChunks bool        `yaml:"cache_chunks"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ConfigDir, ConfigFileName), nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Volume = ClampVolume(cfg.Volume)
	cfg.Enhancement.Intensity = ClampIntensity(cfg.Enhancement.Intensity)
	if cfg.Fetch.MaxRetries < 0 {
		cfg.Fetch.MaxRetries = 0
	}

	return cfg, nil
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Volume:     DefaultVolume,
		LastTrack:  "",
		APIBaseURL: DefaultAPIURL,
		Envelope:   "equal-power",
		Enhancement: Enhancement{
			Enabled:   true,
			Preset:    DefaultPreset,
			Intensity: DefaultIntensity,
		},
		Fetch: Fetch{
			MaxRetries:  3,
			BackoffBase: 500 * time.Millisecond,
			BackoffCap:  5 * time.Second,
		},
		CacheChunks: true,
	}
}
