package abi

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"

	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
)

// ErrInteriorNUL is returned when a string cannot be represented as a
// NUL-terminated C string.
var ErrInteriorNUL = errors.New("string contains interior NUL byte")

const (
	stateOwned int32 = iota
	stateTransferred
	stateReleased
)

// NativeString is an owned, NUL-terminated string in an Allocator.
//
// Whoever holds a *NativeString owns the allocation and must either Release
// it or Transfer it across the boundary, exactly once. The producer that
// returns a NativeString gives up every right to it at the return point.
type NativeString struct {
	alloc  Allocator
	ptr    uint32
	length uint32 // excluding the terminator
	state  atomic.Int32
}

// NewCString allocates a NUL-terminated copy of s in a.
func NewCString(a Allocator, s string) (*NativeString, error) {
	if bytes.IndexByte([]byte(s), 0) >= 0 {
		return nil, ErrInteriorNUL
	}

	size := uint32(len(s)) + 1 //nolint:gosec // G115: identifier strings are small
	ptr, err := a.Allocate(size)
	if err != nil {
		return nil, err
	}

	data := make([]byte, size)
	copy(data, s)
	if !a.Write(ptr, data) {
		_ = a.Free(ptr)
		return nil, fmt.Errorf("abi: failed to write %d bytes at 0x%x", size, ptr)
	}

	return &NativeString{alloc: a, ptr: ptr, length: uint32(len(s))}, nil //nolint:gosec // G115: see above
}

// Ptr returns the base pointer of the allocation.
func (n *NativeString) Ptr() uint32 { return n.ptr }

// Len returns the string length without the terminator.
func (n *NativeString) Len() uint32 { return n.length }

// Size returns the allocation size including the terminator.
func (n *NativeString) Size() uint32 { return n.length + 1 }

// Packed returns ptr<<32|len, where len excludes the terminator.
func (n *NativeString) Packed() uint64 { return PackPtrLen(n.ptr, n.length) }

// View returns a borrowed copy of the string contents. It fails once the
// handle has been released or transferred.
func (n *NativeString) View() (CStringView, error) {
	if st := n.state.Load(); st != stateOwned {
		return CStringView{}, n.violation(st, "view")
	}
	data, ok := n.alloc.Read(n.ptr, n.Size())
	if !ok {
		return CStringView{}, fmt.Errorf("abi: failed to read string at 0x%x", n.ptr)
	}
	if len(data) == 0 || data[len(data)-1] != 0 {
		return CStringView{}, fmt.Errorf("abi: string at 0x%x is not NUL-terminated", n.ptr)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return CStringView{data: out}, nil
}

// Transfer hands the allocation across the boundary and returns its packed
// value. After Transfer the receiver must free it via ReleasePacked (or its
// own deallocator); Release on this handle then fails.
func (n *NativeString) Transfer() (uint64, error) {
	if !n.state.CompareAndSwap(stateOwned, stateTransferred) {
		return 0, n.violation(n.state.Load(), "transfer")
	}
	return n.Packed(), nil
}

// Release frees the allocation. It must be called exactly once by the owner.
func (n *NativeString) Release() error {
	if !n.state.CompareAndSwap(stateOwned, stateReleased) {
		return n.violation(n.state.Load(), "release")
	}
	return n.alloc.Free(n.ptr)
}

// Released reports whether the handle no longer owns its allocation.
func (n *NativeString) Released() bool {
	return n.state.Load() != stateOwned
}

func (n *NativeString) violation(state int32, op string) error {
	reason := fmt.Sprintf("%s of released string 0x%x", op, n.ptr)
	if state == stateTransferred {
		reason = fmt.Sprintf("%s of transferred string 0x%x", op, n.ptr)
	}
	return &domainerrors.ProtocolViolationError{Protocol: "native string", Reason: reason}
}

// CStringView is a borrowed, read-only copy of a NUL-terminated string.
type CStringView struct {
	data []byte // includes the terminator
}

// String returns the contents without the terminator.
func (v CStringView) String() string {
	if len(v.data) == 0 {
		return ""
	}
	return string(v.data[:len(v.data)-1])
}

// Bytes returns the contents including the terminator.
func (v CStringView) Bytes() []byte {
	out := make([]byte, len(v.data))
	copy(out, v.data)
	return out
}
