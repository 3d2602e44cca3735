package logger

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// New returns the process-wide structured logger. JSON on stdout; debug
// level outside staging/production.
func New(appEnv string) *slog.Logger {
	level := slog.LevelDebug
	switch appEnv {
	case "staging", "production":
		level = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
// Requests that went through Middleware carry a request-scoped logger.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// ShutdownFlush is a hook for buffered handlers; the stdout JSON
// handler has nothing to flush.
func ShutdownFlush(_ context.Context, _ time.Duration) error { return nil }
