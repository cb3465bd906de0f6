// Package logging defines the structured logger shared by the chat server
// components and an implementation backed by log/slog.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are key-value pairs, e.g.:
//
//	log.Info(ctx, "client connected", "remote", addr)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}
