// Package abi implements the native side of the boundary ABI: the packed
// ptr<<32|len value exchanged with the guest, the native heap, and the
// owned/borrowed string handle types that make ownership transfer explicit.
package abi

import (
	"fmt"

	"github.com/reglet-dev/hostbridge/domain/ports"
)

// PtrHighBits is the shift applied to the pointer half of a packed value.
const PtrHighBits = 32

// Allocator is a memory space that native strings can be placed in.
// The host-side Heap and the guest's linear memory both implement it.
type Allocator interface {
	ports.GuestMemory

	// Allocate reserves size bytes and returns the base pointer.
	Allocate(size uint32) (uint32, error)

	// Write copies data to ptr. It reports false when the range is invalid.
	Write(ptr uint32, data []byte) bool

	// Free releases the allocation starting at ptr.
	Free(ptr uint32) error
}

// PackPtrLen packs a pointer and length into a single uint64.
// Pointer is stored in the high 32 bits, length in the low 32 bits.
// Panics if ptr is 0 and length > 0, indicating an invalid state.
func PackPtrLen(ptr, length uint32) uint64 {
	if ptr == 0 && length > 0 {
		panic(fmt.Sprintf("abi: invalid pack - null pointer (0x0) with non-zero length (%d)", length))
	}
	return (uint64(ptr) << PtrHighBits) | uint64(length)
}

// UnpackPtrLen unpacks a uint64 into its original pointer and length.
// Unlike PackPtrLen it does not panic: packed values arrive from untrusted
// guests, so ValidPacked must be checked by the caller.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> PtrHighBits) //nolint:gosec // G115: packed format stores 32-bit values
	length = uint32(packed)             //nolint:gosec // G115: packed format stores 32-bit values
	return ptr, length
}

// ValidPacked reports whether packed does not pair a null pointer with a
// non-zero length.
func ValidPacked(packed uint64) bool {
	ptr, length := UnpackPtrLen(packed)
	return ptr != 0 || length == 0
}

// ReleasePacked frees a string previously handed over with
// NativeString.Transfer. It is the receiving side's single release.
func ReleasePacked(a Allocator, packed uint64) error {
	ptr, _ := UnpackPtrLen(packed)
	if ptr == 0 {
		return nil
	}
	return a.Free(ptr)
}
