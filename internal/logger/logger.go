// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context and carries the
// per-tick correlation id through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const tickIDKey ctxKey = "tick_id"

// Init creates a JSON logger on stdout for the given service and installs
// it as the slog default.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps debug|info|warn|error to a slog level. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// WithTickID stores the tick correlation id in the context.
func WithTickID(ctx context.Context, tickID string) context.Context {
	return context.WithValue(ctx, tickIDKey, tickID)
}

// TickID extracts the tick id from context. Returns "" if not set.
func TickID(ctx context.Context) string {
	if v, ok := ctx.Value(tickIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTickID builds "{session}-{seq}".
func GenerateTickID(session string, seq uint64) string {
	return fmt.Sprintf("%s-%d", session, seq)
}

// LogWithTick returns slog attributes including the tick id from context.
// Usage: slog.Info("msg", logger.LogWithTick(ctx)...)
func LogWithTick(ctx context.Context) []any {
	tid := TickID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("tick_id", tid)}
}
