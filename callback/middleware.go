package callback

import (
	"context"
	"fmt"
	"log/slog"

	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
	"github.com/reglet-dev/hostbridge/internal/callctx"
)

// Middleware wraps a NativeFunc to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
type Middleware func(next NativeFunc) NativeFunc

// PanicRecoveryMiddleware converts a panicking function into an
// InvocationError instead of unwinding through the engine.
func PanicRecoveryMiddleware() Middleware {
	return func(next NativeFunc) NativeFunc {
		return func(ctx context.Context, info *CallInfo) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &domainerrors.InvocationError{
						Target: functionName(ctx),
						Err:    fmt.Errorf("panic: %v", r),
					}
				}
			}()
			return next(ctx, info)
		}
	}
}

// LoggingMiddleware logs every invocation to logger.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next NativeFunc) NativeFunc {
		return func(ctx context.Context, info *CallInfo) error {
			name := functionName(ctx)
			args := append(callctx.LogArgs(ctx), "function", name, "args", info.Len())

			logger.DebugContext(ctx, "callback: invoking", args...)
			err := next(ctx, info)
			if err != nil {
				logger.WarnContext(ctx, "callback: failed", append(args, "error", err)...)
				return err
			}
			logger.DebugContext(ctx, "callback: completed", args...)
			return nil
		}
	}
}

func functionName(ctx context.Context) string {
	if cc, ok := ctx.(CallContext); ok {
		return cc.FunctionName()
	}
	return "unknown"
}
