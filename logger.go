package thumbcache

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with thumbcache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithKey adds a cache key field to the logger.
func (l *Logger) WithKey(key Key) *Logger {
	return &Logger{
		Logger: l.Logger.With("key", string(key)),
	}
}

// LogDecode logs a completed decode.
func (l *Logger) LogDecode(key Key, duration time.Duration, err error) {
	if err != nil {
		l.Error("decode failed",
			"key", string(key),
			"duration", duration,
			"error", err,
		)
	} else {
		l.Debug("decode completed",
			"key", string(key),
			"duration", duration,
		)
	}
}

// LogStaleDecode logs a decode whose result arrived after its key was
// invalidated and was discarded instead of inserted.
func (l *Logger) LogStaleDecode(key Key) {
	l.Debug("stale decode result discarded",
		"key", string(key),
	)
}

// LogEviction logs a budget-driven eviction.
func (l *Logger) LogEviction(key Key, bytes int64) {
	l.Debug("entry evicted",
		"key", string(key),
		"bytes", bytes,
	)
}

// LogShutdown logs the cache shutting down its workers.
func (l *Logger) LogShutdown() {
	l.Info("decode workers shut down")
}
