package vecstore

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vecstore-specific context.
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

// WithBackend adds a backend field to the logger.
func (l *Logger) WithBackend(backend string) *Logger {
	return &Logger{
		Logger: l.Logger.With("backend", backend),
	}
}

// WithCollection adds a collection field to the logger.
func (l *Logger) WithCollection(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection", name),
	}
}

// LogGetCollection logs a collection resolution.
func (l *Logger) LogGetCollection(name string, custom bool, err error) {
	if err != nil {
		l.Error("get collection failed",
			"collection", name,
			"error", err,
		)
	} else {
		l.Debug("collection resolved",
			"collection", name,
			"custom_factory", custom,
		)
	}
}

// LogListCollections logs a collection listing.
func (l *Logger) LogListCollections(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "list collections failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "collections listed",
			"count", count,
		)
	}
}

// LogPrepare logs a store preparation.
func (l *Logger) LogPrepare(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "prepare failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "store prepared")
	}
}

// LogUpsert logs an upsert operation.
func (l *Logger) LogUpsert(ctx context.Context, collection, key string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "upsert failed",
			"collection", collection,
			"key", key,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "upsert completed",
			"collection", collection,
			"key", key,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, collection, key string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"collection", collection,
			"key", key,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"collection", collection,
			"key", key,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, collection string, limit, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"collection", collection,
			"limit", limit,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"collection", collection,
			"limit", limit,
			"results", resultsFound,
		)
	}
}
