package abi

import (
	"fmt"
	"math"
	"sync"

	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
)

// DefaultMaxTotalAllocations is the default cap on live native heap bytes.
const DefaultMaxTotalAllocations = 100 * 1024 * 1024 // 100 MB

const (
	heapBase  = 0x10000
	heapAlign = 8
)

// Heap is the native heap that ownership-transferred strings live in.
// It tracks every live allocation so leaks and double frees are observable.
type Heap struct {
	ptrs  map[uint32][]byte // ptr -> backing store
	next  uint32
	total int
	limit int
	mu    sync.Mutex
}

// HeapOption configures a Heap.
type HeapOption func(*Heap)

// WithMaxTotalAllocations caps the total live bytes. Values <= 0 are ignored.
func WithMaxTotalAllocations(limit int) HeapOption {
	return func(h *Heap) {
		if limit > 0 {
			h.limit = limit
		}
	}
}

// NewHeap creates an empty heap.
func NewHeap(opts ...HeapOption) *Heap {
	h := &Heap{
		ptrs:  make(map[uint32][]byte),
		next:  heapBase,
		limit: DefaultMaxTotalAllocations,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Allocate reserves size bytes and returns a non-zero pointer.
// A zero-size request returns 0 without allocating.
func (h *Heap) Allocate(size uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.total+int(size) > h.limit {
		return 0, &domainerrors.OutOfMemoryError{Requested: int(size), Current: h.total, Limit: h.limit}
	}

	aligned := (uint64(size) + heapAlign - 1) &^ (heapAlign - 1)
	if uint64(h.next)+aligned > math.MaxUint32 {
		return 0, &domainerrors.OutOfMemoryError{Requested: int(size), Current: h.total, Limit: h.limit}
	}

	ptr := h.next
	h.next += uint32(aligned) //nolint:gosec // G115: bounded by the check above
	h.ptrs[ptr] = make([]byte, size)
	h.total += int(size)
	return ptr, nil
}

// Write copies data into the allocation that starts at ptr.
func (h *Heap) Write(ptr uint32, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf, ok := h.ptrs[ptr]
	if !ok || len(data) > len(buf) {
		return false
	}
	copy(buf, data)
	return true
}

// Read returns a copy of byteCount bytes from the allocation starting at
// offset. Reads must start at an allocation base.
func (h *Heap) Read(offset, byteCount uint32) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf, ok := h.ptrs[offset]
	if !ok || int(byteCount) > len(buf) {
		return nil, false
	}
	out := make([]byte, byteCount)
	copy(out, buf)
	return out, true
}

// Free releases the allocation at ptr. Freeing an untracked pointer is a
// double free and reported as a protocol violation.
func (h *Heap) Free(ptr uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf, ok := h.ptrs[ptr]
	if !ok {
		return &domainerrors.ProtocolViolationError{
			Protocol: "native heap",
			Reason:   fmt.Sprintf("free of untracked pointer 0x%x", ptr),
		}
	}
	delete(h.ptrs, ptr)
	h.total -= len(buf)
	return nil
}

// Stats returns the number of live allocations and their total size.
func (h *Heap) Stats() (count, bytes int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ptrs), h.total
}

// FreeAll drops every live allocation. Used at shutdown.
func (h *Heap) FreeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.ptrs)
	h.total = 0
}
