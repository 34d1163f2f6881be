package entities

// RawBuffer is a borrowed (pointer, length) region of guest memory.
// It is only valid for the duration of the call that received it.
type RawBuffer struct {
	Ptr uint32
	Len uint32
}

// RawBufferFromPacked splits a packed ptr<<32|len ABI value.
func RawBufferFromPacked(packed uint64) RawBuffer {
	return RawBuffer{
		Ptr: uint32(packed >> 32), //nolint:gosec // G115: packed format stores 32-bit values
		Len: uint32(packed),       //nolint:gosec // G115: packed format stores 32-bit values
	}
}

// Packed returns the ptr<<32|len ABI value.
func (b RawBuffer) Packed() uint64 {
	return (uint64(b.Ptr) << 32) | uint64(b.Len)
}

// IsNull reports a null pointer; a null pointer with non-zero length is invalid.
func (b RawBuffer) IsNull() bool { return b.Ptr == 0 }

// EngineBuffer is a byte store owned by the script engine.
// It never aliases memory supplied by native callers.
type EngineBuffer struct {
	data []byte
}

// NewEngineBuffer copies b into a fresh engine-owned store.
func NewEngineBuffer(b []byte) EngineBuffer {
	data := make([]byte, len(b))
	copy(data, b)
	return EngineBuffer{data: data}
}

// Bytes returns a copy of the buffer contents.
func (b EngineBuffer) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Len returns the byte length.
func (b EngineBuffer) Len() int { return len(b.data) }
