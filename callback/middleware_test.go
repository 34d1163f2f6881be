package callback

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/reglet-dev/hostbridge/domain/entities"
	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanicRecoveryMiddleware(t *testing.T) {
	reg, err := NewRegistry(
		WithMiddleware(PanicRecoveryMiddleware()),
		WithFunction("explode", noParams, func(context.Context, *CallInfo) error {
			panic("test panic")
		}),
	)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "explode")

	var invErr *domainerrors.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "explode", invErr.Target)
	assert.Contains(t, err.Error(), "test panic")
}

func TestPanicRecoveryMiddleware_NoPanic(t *testing.T) {
	wrapped := PanicRecoveryMiddleware()(returns(entities.String("ok")))

	info := NewCallInfo(nil, nil)
	require.NoError(t, wrapped(context.Background(), info))
	v, sets := info.result()
	assert.Equal(t, 1, sets)
	s, _ := v.AsString()
	assert.Equal(t, "ok", s)
}

func TestMiddlewareOrder_FIFO(t *testing.T) {
	var order []string
	trace := func(name string) Middleware {
		return func(next NativeFunc) NativeFunc {
			return func(ctx context.Context, info *CallInfo) error {
				order = append(order, name+"-before")
				err := next(ctx, info)
				order = append(order, name+"-after")
				return err
			}
		}
	}

	reg, err := NewRegistry(
		WithMiddleware(trace("mw1"), trace("mw2")),
		WithFunction("f", noParams, func(_ context.Context, info *CallInfo) error {
			order = append(order, "handler")
			info.SetReturnValue(entities.Undefined())
			return nil
		}),
	)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "f")
	require.NoError(t, err)
	assert.Equal(t, []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}, order)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	reg, err := NewRegistry(
		WithMiddleware(LoggingMiddleware(logger)),
		WithFunction("ok", noParams, returns(entities.Undefined())),
		WithFunction("bad", noParams, func(context.Context, *CallInfo) error {
			return errors.New("nope")
		}),
	)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "ok")
	require.NoError(t, err)
	_, err = reg.Invoke(context.Background(), "bad")
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "callback: invoking")
	assert.Contains(t, out, "function=ok")
	assert.Contains(t, out, "callback: completed")
	assert.Contains(t, out, "callback: failed")
	assert.Contains(t, out, "error=nope")
	assert.Contains(t, out, "request_id=")
}
