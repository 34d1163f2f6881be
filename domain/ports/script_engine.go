package ports

import "context"

// FunctionInvoker calls back into the script engine by function identifier.
// The host scheduler uses it to deliver timers; it runs on the scheduler's
// goroutine, never on the goroutine that scheduled the timer.
type FunctionInvoker interface {
	Invoke(ctx context.Context, fn uint64) error
}

// FunctionInvokerFunc adapts a plain function to FunctionInvoker.
type FunctionInvokerFunc func(ctx context.Context, fn uint64) error

// Invoke implements FunctionInvoker.
func (f FunctionInvokerFunc) Invoke(ctx context.Context, fn uint64) error {
	return f(ctx, fn)
}

// BufferLoader decodes engine-defined user-buffer content into an
// identifier string. Implementations must not retain data after returning.
type BufferLoader interface {
	Load(data []byte) (string, error)

	// Format names the encoding for diagnostics (e.g. "json").
	Format() string
}

// GuestMemory is read access to the script engine's memory space.
// wazero's api.Memory satisfies it. Returned slices alias guest memory and
// are only valid until the next guest call.
type GuestMemory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
}
