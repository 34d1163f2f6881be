package wazero

import (
	"context"
	"errors"
	"fmt"
	"sync"

	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
	"github.com/tetratelabs/wazero/api"
)

// Guest exports used to place host data in guest memory.
const (
	AllocateExport   = "allocate"
	DeallocateExport = "deallocate"
)

// ErrMissingExport is returned when the guest lacks a required export.
var ErrMissingExport = errors.New("guest module missing export")

// guestAllocator implements abi.Allocator over the guest's own allocator.
// Strings it produces are owned by the guest once transferred.
type guestAllocator struct {
	ctx   context.Context
	mod   api.Module
	sizes map[uint32]uint32
	mu    sync.Mutex
}

func newGuestAllocator(ctx context.Context, mod api.Module) *guestAllocator {
	return &guestAllocator{ctx: ctx, mod: mod, sizes: make(map[uint32]uint32)}
}

func (g *guestAllocator) Read(offset, byteCount uint32) ([]byte, bool) {
	return g.mod.Memory().Read(offset, byteCount)
}

func (g *guestAllocator) Write(ptr uint32, data []byte) bool {
	return g.mod.Memory().Write(ptr, data)
}

// Allocate calls the guest's allocate(size) export.
func (g *guestAllocator) Allocate(size uint32) (uint32, error) {
	fn := g.mod.ExportedFunction(AllocateExport)
	if fn == nil {
		return 0, fmt.Errorf("%w: %q", ErrMissingExport, AllocateExport)
	}
	results, err := fn.Call(g.ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("guest allocate(%d): %w", size, err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("guest allocate(%d) returned no results", size)
	}

	ptr := api.DecodeU32(results[0])
	if ptr == 0 && size > 0 {
		return 0, &domainerrors.OutOfMemoryError{Requested: int(size), Limit: int(g.mod.Memory().Size())}
	}

	g.mu.Lock()
	g.sizes[ptr] = size
	g.mu.Unlock()
	return ptr, nil
}

// Free calls the guest's deallocate(ptr, size) export for an allocation made
// through this allocator.
func (g *guestAllocator) Free(ptr uint32) error {
	g.mu.Lock()
	size, ok := g.sizes[ptr]
	delete(g.sizes, ptr)
	g.mu.Unlock()
	if !ok {
		return &domainerrors.ProtocolViolationError{
			Protocol: "guest allocation",
			Reason:   fmt.Sprintf("free of unknown pointer 0x%x", ptr),
		}
	}

	fn := g.mod.ExportedFunction(DeallocateExport)
	if fn == nil {
		return fmt.Errorf("%w: %q", ErrMissingExport, DeallocateExport)
	}
	if _, err := fn.Call(g.ctx, uint64(ptr), uint64(size)); err != nil {
		return fmt.Errorf("guest deallocate(0x%x): %w", ptr, err)
	}
	return nil
}
