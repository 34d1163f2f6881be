package hostrt

import (
	"testing"

	"github.com/reglet-dev/hostbridge/domain/entities"
	"github.com/reglet-dev/hostbridge/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntime_DefineOnUnknownClass(t *testing.T) {
	rt := New()
	err := rt.SetStaticField("nope/Missing", "X", "I", entities.Int(1))
	assert.ErrorIs(t, err, ports.ErrNoSuchClass)

	_, err = rt.NewObject("nope/Missing", nil)
	assert.ErrorIs(t, err, ports.ErrNoSuchClass)
}

func TestRuntime_ResolveMemberKeyedOnKindAndSignature(t *testing.T) {
	rt := New()
	rt.DefineClass("a/B")
	require.NoError(t, rt.SetStaticField("a/B", "x", "I", entities.Int(1)))

	_, err := rt.ResolveMember(desc("a/B", "x", "I", entities.KindStaticField))
	require.NoError(t, err)

	_, err = rt.ResolveMember(desc("a/B", "x", "J", entities.KindStaticField))
	assert.ErrorIs(t, err, ports.ErrNoSuchMember)

	_, err = rt.ResolveMember(desc("a/B", "x", "I", entities.KindStaticMethod))
	assert.ErrorIs(t, err, ports.ErrNoSuchMember)
}

func TestRuntime_Assignability(t *testing.T) {
	rt := New()
	rt.DefineClass("base/Iface")
	rt.DefineClass("mid/Impl", "base/Iface")
	rt.DefineClass("leaf/Sub", "mid/Impl")
	rt.DefineClass("other/Thing")

	ref, err := rt.NewObject("leaf/Sub", nil)
	require.NoError(t, err)

	for _, class := range []string{"leaf/Sub", "mid/Impl", "base/Iface", ObjectClass} {
		is, live := rt.IsInstanceOf(ref, class)
		assert.True(t, live)
		assert.True(t, is, class)
	}
	is, _ := rt.IsInstanceOf(ref, "other/Thing")
	assert.False(t, is)

	rt.DeleteRef(ref)
	_, live := rt.IsInstanceOf(ref, ObjectClass)
	assert.False(t, live)
}

func TestRuntime_CallMethod(t *testing.T) {
	rt := New()
	rt.DefineClass("demo/Counter")
	rt.DefineClass("demo/Other")
	require.NoError(t, rt.DefineMethod("demo/Counter", "incr", "(I)I", func(call Call) (entities.HostValue, error) {
		n := call.Value.(*int32)
		d, _ := call.Args[0].Int()
		*n += d
		return entities.Int(*n), nil
	}))

	var n int32
	ref, err := rt.NewObject("demo/Counter", &n)
	require.NoError(t, err)

	id, err := rt.ResolveMember(desc("demo/Counter", "incr", "(I)I", entities.KindMethod))
	require.NoError(t, err)

	v, err := rt.CallMethod(ref, id, []entities.HostValue{entities.Int(5)})
	require.NoError(t, err)
	got, _ := v.Int()
	assert.Equal(t, int32(5), got)
	assert.Equal(t, 1, rt.Calls("demo/Counter", "incr"))

	other, err := rt.NewObject("demo/Other", nil)
	require.NoError(t, err)
	_, err = rt.CallMethod(other, id, []entities.HostValue{entities.Int(1)})
	var hostErr *ports.HostException
	assert.ErrorAs(t, err, &hostErr)

	rt.DeleteRef(ref)
	_, err = rt.CallMethod(ref, id, []entities.HostValue{entities.Int(1)})
	assert.ErrorIs(t, err, ports.ErrStaleReference)
	assert.Equal(t, 1, rt.LiveObjects())
}

func TestRuntime_PanicBecomesHostException(t *testing.T) {
	rt := New()
	rt.DefineClass("demo/Bad")
	require.NoError(t, rt.DefineStaticMethod("demo/Bad", "explode", "()V", func(Call) (entities.HostValue, error) {
		panic("kaboom")
	}))

	id, err := rt.ResolveMember(desc("demo/Bad", "explode", "()V", entities.KindStaticMethod))
	require.NoError(t, err)

	_, err = rt.CallStatic(id, nil)
	var hostErr *ports.HostException
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, "java/lang/RuntimeException", hostErr.Class)
	assert.Equal(t, "kaboom", hostErr.Message)
}
