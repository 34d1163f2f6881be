package abi

import "github.com/reglet-dev/hostbridge/domain/entities"

// SliceMemory exposes an engine-owned byte slice as guest memory, addressed
// from a fixed non-zero base. It lets buffers that already live in Go (script
// callback arguments) flow through the same borrowed-region path as buffers
// in WASM linear memory.
type SliceMemory struct {
	data []byte
	base uint32
}

const sliceMemoryBase = 0x1000

// NewSliceMemory wraps data without copying it.
func NewSliceMemory(data []byte) SliceMemory {
	return SliceMemory{data: data, base: sliceMemoryBase}
}

// Region returns the RawBuffer covering the whole slice.
func (m SliceMemory) Region() entities.RawBuffer {
	return entities.RawBuffer{Ptr: m.base, Len: uint32(len(m.data))} //nolint:gosec // G115: engine buffers are bounded
}

// Read implements ports.GuestMemory.
func (m SliceMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if offset < m.base {
		return nil, false
	}
	start := uint64(offset - m.base)
	end := start + uint64(byteCount)
	if end > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[start:end], true
}
