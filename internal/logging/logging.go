// Package logging builds the structured loggers used across the engine and
// CLI.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Config selects handler and level.
type Config struct {
	Level string // debug|info|warn|error
	JSON  bool
	Quiet bool
}

// New returns a logger writing to stderr per the config.
func New(cfg Config) *slog.Logger {
	if cfg.Quiet {
		return Discard()
	}
	return NewWriter(os.Stderr, cfg)
}

// NewWriter returns a logger writing to w per the config.
func NewWriter(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
