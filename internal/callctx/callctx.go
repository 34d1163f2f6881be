// Package callctx carries per-call metadata for boundary entry points.
// Every call that enters the bridge from the guest gets a request ID so that
// the log records of one crossing can be correlated, including records written
// later on the scheduler goroutine.
package callctx

import (
	stdcontext "context"

	"github.com/google/uuid"
)

// contextKey is a private type for context value keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for the request ID.
	RequestIDKey contextKey = "request_id"

	// EntryPointKey is the context key for the entry point name.
	EntryPointKey contextKey = "entry_point"
)

// WithRequestID returns a context carrying a request ID. An existing ID is
// kept so nested entry points share the outer crossing's ID.
func WithRequestID(ctx stdcontext.Context) (stdcontext.Context, string) {
	if ctx == nil {
		ctx = stdcontext.Background()
	}
	if id, ok := RequestID(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return stdcontext.WithValue(ctx, RequestIDKey, id), id
}

// RequestID returns the request ID stored in ctx.
func RequestID(ctx stdcontext.Context) (string, bool) {
	id, ok := ctx.Value(RequestIDKey).(string)
	return id, ok && id != ""
}

// WithEntryPoint marks ctx as running inside the named entry point.
// It also ensures a request ID is present.
func WithEntryPoint(ctx stdcontext.Context, name string) stdcontext.Context {
	ctx, _ = WithRequestID(ctx)
	return stdcontext.WithValue(ctx, EntryPointKey, name)
}

// EntryPoint returns the entry point name stored in ctx.
func EntryPoint(ctx stdcontext.Context) string {
	name, _ := ctx.Value(EntryPointKey).(string)
	return name
}

// LogArgs returns slog key/value pairs describing ctx.
func LogArgs(ctx stdcontext.Context) []any {
	var args []any
	if id, ok := RequestID(ctx); ok {
		args = append(args, "request_id", id)
	}
	if name := EntryPoint(ctx); name != "" {
		args = append(args, "entry_point", name)
	}
	return args
}
