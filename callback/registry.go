package callback

import (
	"context"
	"fmt"
	"sort"

	"github.com/reglet-dev/hostbridge/domain/entities"
	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
)

// NativeFunc implements a script-callable function. It must call
// info.SetReturnValue exactly once unless it returns an error.
type NativeFunc func(ctx context.Context, info *CallInfo) error

// Registry is an immutable collection of named script functions.
// Once created via NewRegistry, functions cannot be added or removed,
// so lookups need no locking.
type Registry struct {
	funcs map[string]*function
	names []string // sorted for consistent iteration
}

type function struct {
	fn     NativeFunc
	data   any
	params []entities.ScriptKind
}

// Option configures a Registry under construction.
type Option func(*registryBuilder)

type registryBuilder struct {
	funcs      map[string]*function
	middleware []Middleware
	errors     []error
}

// NewRegistry creates an immutable Registry. It fails if a name is empty or
// registered twice.
//
//	reg, err := NewRegistry(
//	    WithMiddleware(PanicRecoveryMiddleware()),
//	    WithFunction("$log", []entities.ScriptKind{entities.ScriptAny}, logFn),
//	)
func NewRegistry(opts ...Option) (*Registry, error) {
	b := &registryBuilder{funcs: make(map[string]*function)}
	for _, opt := range opts {
		opt(b)
	}

	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	names := make([]string, 0, len(b.funcs))
	for name, f := range b.funcs {
		names = append(names, name)
		// First middleware wraps outermost.
		for i := len(b.middleware) - 1; i >= 0; i-- {
			f.fn = b.middleware[i](f.fn)
		}
	}
	sort.Strings(names)

	return &Registry{funcs: b.funcs, names: names}, nil
}

// Invoke calls the named function with args and returns the value it set.
//
// Errors: InvalidRequestError for an unknown name, ArgumentMismatchError when
// args do not match the declared parameter kinds, ProtocolViolationError when
// the function set its return value zero or several times, and whatever the
// function itself returned.
func (r *Registry) Invoke(ctx context.Context, name string, args ...entities.ScriptValue) (entities.ScriptValue, error) {
	f, ok := r.funcs[name]
	if !ok {
		return entities.Undefined(), &domainerrors.InvalidRequestError{
			Field:  "function",
			Reason: fmt.Sprintf("unknown script function %q", name),
		}
	}
	if err := checkParams(name, f.params, args); err != nil {
		return entities.Undefined(), err
	}

	info := NewCallInfo(args, f.data)
	if err := f.fn(CallContextFrom(ctx, name), info); err != nil {
		return entities.Undefined(), err
	}

	v, sets := info.result()
	if sets != 1 {
		return entities.Undefined(), &domainerrors.ProtocolViolationError{
			Protocol: "callback return",
			Reason:   fmt.Sprintf("%s set its return value %d times, want exactly 1", name, sets),
		}
	}
	return v, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// Names returns the sorted registered names.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Params returns the declared parameter kinds of name.
func (r *Registry) Params(name string) ([]entities.ScriptKind, bool) {
	f, ok := r.funcs[name]
	if !ok {
		return nil, false
	}
	return append([]entities.ScriptKind(nil), f.params...), true
}

func checkParams(name string, params []entities.ScriptKind, args []entities.ScriptValue) error {
	if len(args) != len(params) {
		return &domainerrors.ArgumentMismatchError{
			Target: name,
			Index:  -1,
			Reason: fmt.Sprintf("want %d args, got %d", len(params), len(args)),
		}
	}
	for i, want := range params {
		if want == entities.ScriptAny {
			continue
		}
		if got := args[i].Kind(); got != want {
			return &domainerrors.ArgumentMismatchError{
				Target: name,
				Index:  i,
				Reason: fmt.Sprintf("want %s, got %s", want, got),
			}
		}
	}
	return nil
}

func (b *registryBuilder) add(name string, f *function) error {
	if name == "" {
		return fmt.Errorf("function name cannot be empty")
	}
	if f.fn == nil {
		return fmt.Errorf("function %q has no implementation", name)
	}
	if _, exists := b.funcs[name]; exists {
		return fmt.Errorf("duplicate function name: %q", name)
	}
	b.funcs[name] = f
	return nil
}

// WithFunction registers fn under name with the given parameter kinds.
func WithFunction(name string, params []entities.ScriptKind, fn NativeFunc) Option {
	return WithBoundFunction(name, params, nil, fn)
}

// WithBoundFunction registers fn with opaque data available through
// CallInfo.Data on every call.
func WithBoundFunction(name string, params []entities.ScriptKind, data any, fn NativeFunc) Option {
	return func(b *registryBuilder) {
		f := &function{fn: fn, data: data, params: append([]entities.ScriptKind(nil), params...)}
		if err := b.add(name, f); err != nil {
			b.errors = append(b.errors, err)
		}
	}
}

// WithMiddleware adds middleware to the registry.
// Middleware executes in FIFO order (first added wraps first).
func WithMiddleware(mw ...Middleware) Option {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
