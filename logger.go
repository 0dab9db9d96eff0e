package sparsetile

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with consistent field names for tile building.
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
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// WithBlock adds a block index field to the logger.
func (l *Logger) WithBlock(block int) *Logger {
	return &Logger{
		Logger: l.Logger.With("block", block),
	}
}

// LogIngest logs one Ingest call.
func (l *Logger) LogIngest(ctx context.Context, block, rows, nnz, features, bytes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "ingest failed",
			"block", block,
			"rows", rows,
			"nnz", nnz,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "tile stored",
		"block", block,
		"rows", rows,
		"nnz", nnz,
		"features", features,
		"bytes", bytes,
	)
}

// LogFinalize logs a completed or failed Finalize call.
func (l *Logger) LogFinalize(ctx context.Context, blocks, globalIDs, unmatched int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "finalize failed",
			"blocks", blocks,
			"global_ids", globalIDs,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "finalize completed",
		"blocks", blocks,
		"global_ids", globalIDs,
		"unmatched", unmatched,
	)
}
