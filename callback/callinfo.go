// Package callback registers native functions that script code can call.
//
// Functions are collected into an immutable Registry at construction time.
// Each call receives a CallInfo carrying the script arguments and the
// function's bound data, and must set its return value exactly once.
// These implementations have no WASM runtime dependencies; the wazero
// adapter exposes the registry to guests through call_native.
package callback

import (
	"github.com/reglet-dev/hostbridge/domain/entities"
)

// CallInfo is the per-call view a NativeFunc gets of its invocation.
type CallInfo struct {
	data any
	args []entities.ScriptValue
	ret  entities.ScriptValue
	sets int
}

// NewCallInfo creates a CallInfo over args. The slice is copied.
func NewCallInfo(args []entities.ScriptValue, data any) *CallInfo {
	return &CallInfo{args: append([]entities.ScriptValue(nil), args...), data: data}
}

// Len returns the number of arguments.
func (c *CallInfo) Len() int { return len(c.args) }

// Arg returns argument i, or undefined when i is out of range.
func (c *CallInfo) Arg(i int) entities.ScriptValue {
	if i < 0 || i >= len(c.args) {
		return entities.Undefined()
	}
	return c.args[i]
}

// Data returns the opaque value bound to the function at registration.
func (c *CallInfo) Data() any { return c.data }

// SetReturnValue records the call's result. Calling it more than once is a
// protocol violation reported by Registry.Invoke.
func (c *CallInfo) SetReturnValue(v entities.ScriptValue) {
	c.ret = v
	c.sets++
}

// result returns the recorded value and how many times it was set.
func (c *CallInfo) result() (entities.ScriptValue, int) {
	return c.ret, c.sets
}
