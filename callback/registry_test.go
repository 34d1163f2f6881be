package callback

import (
	"context"
	"testing"

	"github.com/reglet-dev/hostbridge/domain/entities"
	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	noParams  []entities.ScriptKind
	oneNumber = []entities.ScriptKind{entities.ScriptNumber}
)

func returns(v entities.ScriptValue) NativeFunc {
	return func(_ context.Context, info *CallInfo) error {
		info.SetReturnValue(v)
		return nil
	}
}

func TestNewRegistry_Empty(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.Empty(t, reg.Names())
}

func TestNewRegistry_Names(t *testing.T) {
	reg, err := NewRegistry(
		WithFunction("test_fn", noParams, returns(entities.Undefined())),
		WithFunction("$log", []entities.ScriptKind{entities.ScriptAny}, returns(entities.Undefined())),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"$log", "test_fn"}, reg.Names())
	assert.True(t, reg.Has("$log"))
	assert.False(t, reg.Has("$nope"))

	params, ok := reg.Params("$log")
	require.True(t, ok)
	assert.Equal(t, []entities.ScriptKind{entities.ScriptAny}, params)
}

func TestNewRegistry_Errors(t *testing.T) {
	fn := returns(entities.Undefined())

	_, err := NewRegistry(WithFunction("f", noParams, fn), WithFunction("f", noParams, fn))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate function name")

	_, err = NewRegistry(WithFunction("", noParams, fn))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")

	_, err = NewRegistry(WithFunction("f", noParams, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no implementation")
}

func TestRegistry_Invoke(t *testing.T) {
	reg, err := NewRegistry(
		WithFunction("double", oneNumber, func(_ context.Context, info *CallInfo) error {
			n, _ := info.Arg(0).AsNumber()
			info.SetReturnValue(entities.Number(n * 2))
			return nil
		}),
	)
	require.NoError(t, err)

	v, err := reg.Invoke(context.Background(), "double", entities.Number(21))
	require.NoError(t, err)
	n, ok := v.AsNumber()
	require.True(t, ok)
	assert.Equal(t, 42.0, n)
}

func TestRegistry_InvokeUnknown(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "missing")
	var reqErr *domainerrors.InvalidRequestError
	assert.ErrorAs(t, err, &reqErr)
}

func TestRegistry_ArgumentMismatch(t *testing.T) {
	called := false
	reg, err := NewRegistry(WithFunction("double", oneNumber, func(_ context.Context, info *CallInfo) error {
		called = true
		info.SetReturnValue(entities.Undefined())
		return nil
	}))
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "double")
	var argErr *domainerrors.ArgumentMismatchError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, -1, argErr.Index)

	_, err = reg.Invoke(context.Background(), "double", entities.String("21"))
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, 0, argErr.Index)
	assert.Equal(t, "want number, got string", argErr.Reason)

	assert.False(t, called)
}

func TestRegistry_ReturnProtocol(t *testing.T) {
	reg, err := NewRegistry(
		WithFunction("never", noParams, func(context.Context, *CallInfo) error { return nil }),
		WithFunction("twice", noParams, func(_ context.Context, info *CallInfo) error {
			info.SetReturnValue(entities.Number(1))
			info.SetReturnValue(entities.Number(2))
			return nil
		}),
	)
	require.NoError(t, err)

	for _, name := range []string{"never", "twice"} {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Invoke(context.Background(), name)
			var violation *domainerrors.ProtocolViolationError
			require.ErrorAs(t, err, &violation)
			assert.Equal(t, "callback return", violation.Protocol)
			assert.True(t, domainerrors.IsRecoverable(err))
		})
	}
}

func TestRegistry_BoundData(t *testing.T) {
	type holder struct{ ref entities.ObjectRef }

	reg, err := NewRegistry(WithBoundFunction("peek", noParams, &holder{ref: 9}, func(_ context.Context, info *CallInfo) error {
		h := info.Data().(*holder)
		info.SetReturnValue(entities.Number(float64(h.ref)))
		return nil
	}))
	require.NoError(t, err)

	v, err := reg.Invoke(context.Background(), "peek")
	require.NoError(t, err)
	n, _ := v.AsNumber()
	assert.Equal(t, 9.0, n)
}

func TestRegistry_ContextCarriesFunctionName(t *testing.T) {
	var got string
	reg, err := NewRegistry(WithFunction("who", noParams, func(ctx context.Context, info *CallInfo) error {
		got = functionName(ctx)
		info.SetReturnValue(entities.Null())
		return nil
	}))
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "who")
	require.NoError(t, err)
	assert.Equal(t, "who", got)
}

func TestCallInfo(t *testing.T) {
	args := []entities.ScriptValue{entities.Number(1), entities.String("x")}
	info := NewCallInfo(args, "data")
	args[0] = entities.Null()

	assert.Equal(t, 2, info.Len())
	assert.Equal(t, entities.ScriptNumber, info.Arg(0).Kind())
	assert.Equal(t, entities.ScriptUndefined, info.Arg(5).Kind())
	assert.Equal(t, entities.ScriptUndefined, info.Arg(-1).Kind())
	assert.Equal(t, "data", info.Data())
}
