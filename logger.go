package envgo

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/envgo/digest"
)

// Logger wraps slog.Logger with envgo-specific context.
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
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithDigest adds a digest field to the logger.
func (l *Logger) WithDigest(d digest.Digest) *Logger {
	return &Logger{
		Logger: l.Logger.With("digest", d.Short()),
	}
}

// LogPut logs a put operation.
func (l *Logger) LogPut(ctx context.Context, d digest.Digest, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "put failed",
			"digest", d.Short(),
			"size", size,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "put completed",
			"digest", d.Short(),
			"size", size,
		)
	}
}

// LogGet logs a get operation.
func (l *Logger) LogGet(ctx context.Context, d digest.Digest, err error) {
	if err != nil {
		l.DebugContext(ctx, "get failed",
			"digest", d.Short(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "get completed",
			"digest", d.Short(),
		)
	}
}

// LogRemove logs a remove operation.
func (l *Logger) LogRemove(ctx context.Context, d digest.Digest, err error) {
	if err != nil {
		l.ErrorContext(ctx, "remove failed",
			"digest", d.Short(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "remove completed",
			"digest", d.Short(),
		)
	}
}

// LogQuery logs an index query.
func (l *Logger) LogQuery(ctx context.Context, kind string, results int) {
	l.DebugContext(ctx, "query completed",
		"kind", kind,
		"results", results,
	)
}

// LogSnapshot logs a snapshot write.
func (l *Logger) LogSnapshot(ctx context.Context, name string, entries int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"name", name,
			"entries", entries,
		)
	}
}

// LogRestore logs a snapshot restore.
func (l *Logger) LogRestore(ctx context.Context, name string, entries int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "restore completed",
			"name", name,
			"entries", entries,
		)
	}
}
