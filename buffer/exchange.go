// Package buffer moves bytes between script-engine memory and native code.
//
// Buffers going to the engine are always copied. Buffers coming from the
// engine are borrowed for the duration of one call, decoded by a
// ports.BufferLoader, and the resulting identifier is handed back as an owned
// abi.NativeString that the caller must release or transfer exactly once.
package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reglet-dev/hostbridge/domain/entities"
	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
	"github.com/reglet-dev/hostbridge/domain/ports"
	"github.com/reglet-dev/hostbridge/internal/abi"
	"github.com/reglet-dev/hostbridge/internal/callctx"
)

// DefaultMaxSize caps the size of a single buffer crossing the boundary.
const DefaultMaxSize = 10 * 1024 * 1024 // 10 MB

// Exchange converts buffers at the boundary.
type Exchange struct {
	loader  ports.BufferLoader
	logger  *slog.Logger
	maxSize int
}

// Option configures an Exchange.
type Option func(*Exchange)

// WithLoader sets the decoder for engine-supplied buffers.
func WithLoader(l ports.BufferLoader) Option {
	return func(e *Exchange) {
		if l != nil {
			e.loader = l
		}
	}
}

// WithMaxSize caps buffer sizes in both directions. Values <= 0 are ignored.
func WithMaxSize(n int) Option {
	return func(e *Exchange) {
		if n > 0 {
			e.maxSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exchange) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Exchange using JSONUserLoader unless another loader is set.
func New(opts ...Option) *Exchange {
	e := &Exchange{
		loader:  JSONUserLoader{},
		logger:  slog.Default(),
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Loader returns the configured buffer loader.
func (e *Exchange) Loader() ports.BufferLoader { return e.loader }

// WrapForEngine copies b into an engine-owned buffer. Later changes to b do
// not affect the result.
func (e *Exchange) WrapForEngine(b []byte) (entities.EngineBuffer, error) {
	if len(b) > e.maxSize {
		return entities.EngineBuffer{}, &domainerrors.OutOfMemoryError{
			Requested: len(b),
			Limit:     e.maxSize,
		}
	}
	return entities.NewEngineBuffer(b), nil
}

// ExportIdentifier decodes the borrowed region raw of mem into an identifier
// and returns it as a NUL-terminated string allocated in alloc. Ownership of
// the result passes to the caller. On error nothing allocated by the call
// survives it.
func (e *Exchange) ExportIdentifier(ctx context.Context, mem ports.GuestMemory, raw entities.RawBuffer, alloc abi.Allocator) (*abi.NativeString, error) {
	if raw.IsNull() && raw.Len > 0 {
		return nil, &domainerrors.InvalidRequestError{
			Field:  "buffer",
			Reason: fmt.Sprintf("null pointer with length %d", raw.Len),
		}
	}
	if int(raw.Len) > e.maxSize {
		return nil, &domainerrors.InvalidRequestError{
			Field:  "buffer",
			Reason: fmt.Sprintf("length %d exceeds limit %d", raw.Len, e.maxSize),
		}
	}

	var data []byte
	if raw.Len > 0 {
		var ok bool
		data, ok = mem.Read(raw.Ptr, raw.Len)
		if !ok {
			return nil, &domainerrors.InvalidRequestError{
				Field:  "buffer",
				Reason: fmt.Sprintf("region 0x%x+%d out of bounds", raw.Ptr, raw.Len),
			}
		}
	}

	id, err := e.loader.Load(data)
	if err != nil {
		return nil, &domainerrors.DecodeError{Format: e.loader.Format(), Err: err}
	}
	if strings.IndexByte(id, 0) >= 0 {
		return nil, &domainerrors.DecodeError{Format: e.loader.Format(), Err: abi.ErrInteriorNUL}
	}

	ns, err := abi.NewCString(alloc, id)
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "buffer: identifier exported", append(callctx.LogArgs(ctx),
		"bytes", raw.Len,
		"ptr", ns.Ptr(),
	)...)
	return ns, nil
}
