// Package logging provides structured logging configuration using log/slog.
//
// Loggers obtained through FromContext carry the pipeline run ID and the
// partition being processed, plus chi's request ID when called from the
// monitoring server, so every line of a run can be correlated.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// Setup configures the global slog logger based on level and format.
// Output goes to stderr so stdout stays free for CLI reports.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	SetupWriter(os.Stderr, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromContext returns a logger enriched with run and request context.
//
// Usage:
//
//	ctx = core.ContextWithRunID(ctx, runID)
//	logger := logging.FromContext(ctx)
//	logger.Info("file merged", "path", path)
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if runID := core.RunIDFromContext(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}
	if partition := core.PartitionFromContext(ctx); partition != "" {
		logger = logger.With("partition", partition)
	}

	// Chi's RequestID middleware stores the ID in context
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	fileLogger := logging.WithFields(ctx, "path", path, "status", status)
//	fileLogger.Info("file accepted")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
