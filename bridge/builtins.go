package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/reglet-dev/hostbridge/callback"
	"github.com/reglet-dev/hostbridge/domain/entities"
	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
	"github.com/reglet-dev/hostbridge/domain/ports"
	"github.com/reglet-dev/hostbridge/hostaccess"
	"github.com/reglet-dev/hostbridge/internal/abi"
	"github.com/reglet-dev/hostbridge/internal/callctx"
)

// Script function names installed on every Bridge.
const (
	FuncSend      = "$send"
	FuncLog       = "$log"
	FuncInvokeRef = "$invokeRef"
	FuncTest      = "test_fn"
)

// testPayload is what test_fn returns.
const testPayload = "Send 💖 from Go"

func (b *Bridge) builtins() []callback.Option {
	return []callback.Option{
		callback.WithFunction(FuncSend,
			[]entities.ScriptKind{entities.ScriptBuffer, entities.ScriptFunction}, b.send),
		callback.WithFunction(FuncLog,
			[]entities.ScriptKind{entities.ScriptAny}, b.log),
		callback.WithBoundFunction(FuncInvokeRef,
			[]entities.ScriptKind{entities.ScriptNumber}, b.holder, b.invokeRef),
		callback.WithFunction(FuncTest, nil, b.testFn),
	}
}

// send decodes the user buffer into an identifier and returns it as a
// script string. The function argument is the completion hook.
func (b *Bridge) send(ctx context.Context, info *callback.CallInfo) error {
	buf, _ := info.Arg(0).AsBuffer()
	fn, _ := info.Arg(1).AsFunction()

	mem := abi.NewSliceMemory(buf.Bytes())
	id, err := b.identifierString(ctx, mem, mem.Region(), b.heap, fn)
	if err != nil {
		return err
	}
	info.SetReturnValue(entities.String(id))
	return nil
}

// identifierString exports the identifier in raw, copies it out and
// releases the native string. The completion hook is scheduled last so a
// failed call never leaves a notification queued.
func (b *Bridge) identifierString(ctx context.Context, mem ports.GuestMemory, raw entities.RawBuffer, alloc abi.Allocator, notify uint64) (string, error) {
	ns, err := b.buffers.ExportIdentifier(ctx, mem, raw, alloc)
	if err != nil {
		return "", err
	}

	view, err := ns.View()
	if relErr := ns.Release(); relErr != nil && err == nil {
		err = relErr
	}
	if err != nil {
		return "", err
	}

	if notify != 0 {
		if err := b.notify(ctx, notify); err != nil {
			return "", err
		}
	}
	return view.String(), nil
}

// log writes the JSON form of its argument to the bridge logger.
func (b *Bridge) log(ctx context.Context, info *callback.CallInfo) error {
	var payload any
	if obj, ok := info.Arg(0).AsObject(); ok {
		payload = obj
	} else {
		payload = info.Arg(0)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return &domainerrors.InvalidRequestError{Field: "value", Reason: fmt.Sprintf("not serializable: %v", err)}
	}
	b.logger.InfoContext(ctx, "script: log", append(callctx.LogArgs(ctx), "value", string(data))...)

	info.SetReturnValue(entities.Undefined())
	return nil
}

// invokeRef calls update_ui on the bound holder object.
func (b *Bridge) invokeRef(_ context.Context, info *callback.CallInfo) error {
	holder, _ := info.Data().(entities.ObjectRef)
	n, _ := info.Arg(0).AsNumber()
	if math.IsNaN(n) || n < math.MinInt32 || n > math.MaxInt32 {
		return &domainerrors.InvalidRequestError{Field: "value", Reason: fmt.Sprintf("%v is not an int32", n)}
	}

	if _, err := b.accessor.CallInstanceMethod(holder, b.table.MustGet(hostaccess.UpdateUI), entities.Int(int32(n))); err != nil {
		return err
	}
	info.SetReturnValue(entities.Number(1))
	return nil
}

func (b *Bridge) testFn(_ context.Context, info *callback.CallInfo) error {
	buf, err := b.buffers.WrapForEngine([]byte(testPayload))
	if err != nil {
		return err
	}
	info.SetReturnValue(entities.Buffer(buf))
	return nil
}
