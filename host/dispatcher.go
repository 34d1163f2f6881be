package host

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrNoScript is returned when a timer fires before any script is bound.
var ErrNoScript = errors.New("host: no script bound")

// Dispatcher is a ports.FunctionInvoker that forwards to the bound script.
// The host platform needs an invoker before any script exists; the
// dispatcher is created first and bound when the script loads.
type Dispatcher struct {
	current atomic.Pointer[ScriptInstance]
}

// NewDispatcher creates an unbound dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Bind makes inst the target of subsequent invocations. nil unbinds.
func (d *Dispatcher) Bind(inst *ScriptInstance) {
	d.current.Store(inst)
}

// Invoke forwards fn to the bound script.
func (d *Dispatcher) Invoke(ctx context.Context, fn uint64) error {
	inst := d.current.Load()
	if inst == nil {
		return ErrNoScript
	}
	return inst.Invoke(ctx, fn)
}
