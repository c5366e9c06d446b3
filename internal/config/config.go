package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	AppName         = "Wavecast"
	AppTagline      = "Chunked audio streaming player"
	AppDescription  = "A terminal player for chunk-served audio tracks with gapless crossfade"
	AppProjectURL   = "https://github.com/wavecast/wavecast"
	AppProjectShort = "github.com/wavecast/wavecast"

	ConfigDir      = ".config/wavecast"
	ConfigFileName = "config.yml"

	DefaultEndpoint     = "https://api.wavecast.live"
	DefaultVolume       = 0.8
	MinVolume           = 0.0
	MaxVolume           = 1.0
	DefaultBufferKB     = 1024
	DefaultCrossfadeMs  = 50
	DefaultPreloadAhead = 2
	DefaultMaxAttempts  = 3
	DefaultRetryBaseMs  = 500
	DefaultCacheSlots   = 10
	DefaultTickMs       = 50
)

// ClampVolume ensures volume is within the valid range [0.0, 1.0].
func ClampVolume(volume float64) float64 {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/wavecast/wavecast/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type Config struct {
	Endpoint        string  `yaml:"endpoint"`
	Volume          float64 `yaml:"volume"`
	BufferKB        int     `yaml:"buffer_kb"`
	CrossfadeMs     int     `yaml:"crossfade_ms"`
	PreloadAhead    int     `yaml:"preload_ahead"`
	MaxLoadAttempts int     `yaml:"max_load_attempts"`
	RetryBaseMs     int     `yaml:"retry_base_ms"`
	CacheSlots      int     `yaml:"cache_slots"`
	TickMs          int     `yaml:"tick_ms"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
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
	cfg.clampDurations()

	return cfg, nil
}

func (c *Config) clampDurations() {
	if c.BufferKB <= 0 {
		c.BufferKB = DefaultBufferKB
	}
	if c.CrossfadeMs < 0 {
		c.CrossfadeMs = 0
	}
	if c.PreloadAhead < 0 {
		c.PreloadAhead = 0
	}
	if c.MaxLoadAttempts <= 0 {
		c.MaxLoadAttempts = DefaultMaxAttempts
	}
	if c.RetryBaseMs <= 0 {
		c.RetryBaseMs = DefaultRetryBaseMs
	}
	if c.CacheSlots <= 0 {
		c.CacheSlots = DefaultCacheSlots
	}
	if c.TickMs <= 0 {
		c.TickMs = DefaultTickMs
	}
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
		Endpoint:        DefaultEndpoint,
		Volume:          DefaultVolume,
		BufferKB:        DefaultBufferKB,
		CrossfadeMs:     DefaultCrossfadeMs,
		PreloadAhead:    DefaultPreloadAhead,
		MaxLoadAttempts: DefaultMaxAttempts,
		RetryBaseMs:     DefaultRetryBaseMs,
		CacheSlots:      DefaultCacheSlots,
		TickMs:          DefaultTickMs,
	}
}
