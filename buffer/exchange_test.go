package buffer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/reglet-dev/hostbridge/domain/entities"
	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
	"github.com/reglet-dev/hostbridge/internal/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingAllocator rejects every allocation.
type failingAllocator struct {
	*abi.Heap
}

func (failingAllocator) Allocate(size uint32) (uint32, error) {
	return 0, &domainerrors.OutOfMemoryError{Requested: int(size), Limit: 0}
}

// rawLoader returns the buffer contents verbatim.
type rawLoader struct{}

func (rawLoader) Load(data []byte) (string, error) { return string(data), nil }
func (rawLoader) Format() string { return "raw" }

func TestExportIdentifier_User42(t *testing.T) {
	heap := abi.NewHeap()
	mem := abi.NewSliceMemory([]byte(`{"id":"user-42"}`))

	ns, err := New().ExportIdentifier(context.Background(), mem, mem.Region(), heap)
	require.NoError(t, err)

	data, ok := heap.Read(ns.Ptr(), ns.Size())
	require.True(t, ok)
	assert.Equal(t, []byte("user-42\x00"), data)

	require.NoError(t, ns.Release())
	count, bytes := heap.Stats()
	assert.Zero(t, count)
	assert.Zero(t, bytes)

	var violation *domainerrors.ProtocolViolationError
	assert.ErrorAs(t, ns.Release(), &violation, "second release is detected")
}

func TestExportIdentifier_RoundTripLeavesNoAllocations(t *testing.T) {
	heap := abi.NewHeap()
	ex := New()

	ids := []string{"a", "user-42", "名前", "💖", "with space"}
	for i := range 50 {
		ids = append(ids, fmt.Sprintf("id-%d-%x", i, i*7919))
	}

	for _, id := range ids {
		payload := fmt.Sprintf(`{"id":%q}`, id)
		mem := abi.NewSliceMemory([]byte(payload))

		ns, err := ex.ExportIdentifier(context.Background(), mem, mem.Region(), heap)
		require.NoError(t, err, id)

		view, err := ns.View()
		require.NoError(t, err)
		assert.Equal(t, id, view.String())

		require.NoError(t, ns.Release())
	}

	count, _ := heap.Stats()
	assert.Zero(t, count)
}

func TestExportIdentifier_TransferThenReceiverFrees(t *testing.T) {
	heap := abi.NewHeap()
	mem := abi.NewSliceMemory([]byte(`{"name":"alias"}`))

	ns, err := New().ExportIdentifier(context.Background(), mem, mem.Region(), heap)
	require.NoError(t, err)

	packed, err := ns.Transfer()
	require.NoError(t, err)
	assert.Error(t, ns.Release(), "producer gave up its rights")

	require.NoError(t, abi.ReleasePacked(heap, packed))
	count, _ := heap.Stats()
	assert.Zero(t, count)
}

func TestExportIdentifier_UndecodableAllocatesNothing(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte(""),
		[]byte("{"),
		[]byte("not json"),
		[]byte(`{"id":""}`),
		[]byte(`{"other":"x"}`),
		[]byte(`[1,2,3]`),
		[]byte(`{"id":42}`),
		{0xff, 0xfe, 0x00},
	}

	heap := abi.NewHeap()
	ex := New()
	for _, in := range inputs {
		mem := abi.NewSliceMemory(in)
		ns, err := ex.ExportIdentifier(context.Background(), mem, mem.Region(), heap)

		var decodeErr *domainerrors.DecodeError
		require.ErrorAs(t, err, &decodeErr, "input %q", in)
		assert.Equal(t, "json", decodeErr.Format)
		assert.Nil(t, ns)
		assert.True(t, domainerrors.IsRecoverable(err))
	}

	count, _ := heap.Stats()
	assert.Zero(t, count)
}

func TestExportIdentifier_InteriorNUL(t *testing.T) {
	heap := abi.NewHeap()
	mem := abi.NewSliceMemory([]byte("bad\x00id"))

	_, err := New(WithLoader(rawLoader{})).ExportIdentifier(context.Background(), mem, mem.Region(), heap)

	var decodeErr *domainerrors.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.ErrorIs(t, err, abi.ErrInteriorNUL)
	count, _ := heap.Stats()
	assert.Zero(t, count)
}

func TestExportIdentifier_BadRegion(t *testing.T) {
	heap := abi.NewHeap()
	mem := abi.NewSliceMemory([]byte(`{"id":"x"}`))
	ex := New()

	tests := map[string]entities.RawBuffer{
		"null with length": {Ptr: 0, Len: 4},
		"out of bounds":    {Ptr: mem.Region().Ptr, Len: 1000},
		"below base":       {Ptr: 1, Len: 1},
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ex.ExportIdentifier(context.Background(), mem, raw, heap)
			var reqErr *domainerrors.InvalidRequestError
			assert.ErrorAs(t, err, &reqErr)
		})
	}
}

func TestExportIdentifier_OverLimit(t *testing.T) {
	data := []byte(`{"id":"long-enough"}`)
	mem := abi.NewSliceMemory(data)

	_, err := New(WithMaxSize(4)).ExportIdentifier(context.Background(), mem, mem.Region(), abi.NewHeap())
	var reqErr *domainerrors.InvalidRequestError
	assert.ErrorAs(t, err, &reqErr)
}

func TestExportIdentifier_AllocationFailure(t *testing.T) {
	mem := abi.NewSliceMemory([]byte(`{"id":"x"}`))

	_, err := New().ExportIdentifier(context.Background(), mem, mem.Region(), failingAllocator{abi.NewHeap()})

	var oom *domainerrors.OutOfMemoryError
	require.ErrorAs(t, err, &oom)
	assert.False(t, domainerrors.IsRecoverable(err))
}

func TestWrapForEngine_Copies(t *testing.T) {
	ex := New()
	inputs := [][]byte{nil, {}, []byte("Send 💖 from Go"), make([]byte, 4096)}

	for _, in := range inputs {
		original := append([]byte(nil), in...)
		buf, err := ex.WrapForEngine(in)
		require.NoError(t, err)
		assert.Equal(t, len(original), buf.Len())
		if len(original) > 0 {
			assert.Equal(t, original, buf.Bytes())
		}

		for i := range in {
			in[i] ^= 0xff
		}
		if len(original) > 0 {
			assert.Equal(t, original, buf.Bytes(), "mutating the source must not leak into the engine buffer")
		}
	}
}

func TestWrapForEngine_OverLimit(t *testing.T) {
	_, err := New(WithMaxSize(8)).WrapForEngine(make([]byte, 9))

	var oom *domainerrors.OutOfMemoryError
	require.ErrorAs(t, err, &oom)
	assert.Equal(t, 9, oom.Requested)
	assert.Equal(t, 8, oom.Limit)
}

func TestJSONUserLoader(t *testing.T) {
	var l JSONUserLoader
	assert.Equal(t, "json", l.Format())

	id, err := l.Load([]byte(`{"id":"user-42","name":"ignored"}`))
	require.NoError(t, err)
	assert.Equal(t, "user-42", id)

	id, err = l.Load([]byte(`{"name":"fallback"}`))
	require.NoError(t, err)
	assert.Equal(t, "fallback", id)

	_, err = l.Load([]byte(`{}`))
	assert.True(t, errors.Is(err, ErrEmptyIdentifier))
}
