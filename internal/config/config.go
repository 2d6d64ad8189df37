// Package config loads engine configuration from TOML. CLI flags override
// file values; the file overrides defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full configuration tree.
type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Index   IndexConfig   `toml:"index"`
	Archive ArchiveConfig `toml:"archive"`
	Log     LogConfig     `toml:"log"`
}

// EngineConfig tunes the query engine.
type EngineConfig struct {
	// CacheMaxEntries bounds the query cache; 0 means unbounded.
	CacheMaxEntries int `toml:"cache_max_entries"`
	// Parallelism caps concurrent file reads during bulk indexing; 0 means
	// one worker per CPU.
	Parallelism int `toml:"parallelism"`
}

// IndexConfig selects files for bulk indexing and watch mode.
type IndexConfig struct {
	// Include globs (doublestar syntax) relative to the indexed root. Empty
	// means every file a language pack claims.
	Include []string `toml:"include"`
	// Exclude globs take precedence over includes.
	Exclude []string `toml:"exclude"`
}

// ArchiveConfig locates the snapshot database.
type ArchiveConfig struct {
	Path string `toml:"path"`
}

// LogConfig shapes CLI logging.
type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			CacheMaxEntries: 0,
			Parallelism:     0,
		},
		Index: IndexConfig{
			Exclude: []string{"**/.*/**", "**/node_modules/**", "**/vendor/**"},
		},
		Archive: ArchiveConfig{Path: ".trellis/archive.db"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file is not an error: the
// defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot honor.
func (c Config) Validate() error {
	if c.Engine.CacheMaxEntries < 0 {
		return fmt.Errorf("engine.cache_max_entries must be >= 0, got %d", c.Engine.CacheMaxEntries)
	}
	if c.Engine.Parallelism < 0 {
		return fmt.Errorf("engine.parallelism must be >= 0, got %d", c.Engine.Parallelism)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug|info|warn|error, got %q", c.Log.Level)
	}
	return nil
}
