// Package log builds the slog loggers used across docent components.
//
// Loggers are injected, never global: each component receives a log.Logger
// through its constructor and may add context via logger.With(). The type
// alias keeps full compatibility with the slog ecosystem without a custom
// interface.
//
// Usage:
//
//	logger := log.New(log.Config{Level: slog.LevelDebug, JSON: true})
//	store := thread.NewStore(pool, logger.With("component", "threads"))
//
//	// In tests, discard output or capture it:
//	testLogger := log.NewNop()
//	var buf bytes.Buffer
//	testLogger = log.NewWithWriter(&buf, log.Config{})
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is an alias for *slog.Logger; constructors accept log.Logger as
// a dependency.
type Logger = *slog.Logger

// Config selects the handler for a new logger.
type Config struct {
	Level     slog.Level // minimum level; the zero value is slog.LevelInfo
	JSON      bool       // JSON handler instead of text
	AddSource bool       // annotate records with file:line
}

// New creates a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Useful for tests and
// custom output destinations.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewNop returns a logger that drops everything. Test use only; production
// code always configures a real writer.
func NewNop() Logger {
	return slog.New(slog.DiscardHandler)
}
