package entities

import "fmt"

// ObjectRef is an opaque reference to a host-runtime object.
// The zero value is the null reference.
type ObjectRef uint64

// IsNull reports whether the reference is null.
func (r ObjectRef) IsNull() bool { return r == 0 }

// SchedulerHandle is the host scheduler object timers are submitted to.
type SchedulerHandle ObjectRef

// Ref returns the underlying object reference.
func (h SchedulerHandle) Ref() ObjectRef { return ObjectRef(h) }

// ValueTag discriminates HostValue.
type ValueTag uint8

const (
	TagVoid ValueTag = iota
	TagInt
	TagLong
	TagBool
	TagObject
)

func (t ValueTag) String() string {
	switch t {
	case TagVoid:
		return "void"
	case TagInt:
		return "int"
	case TagLong:
		return "long"
	case TagBool:
		return "boolean"
	case TagObject:
		return "object"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// HostValue is a tagged union over the values the host runtime produces
// and accepts. Only the field matching Tag is meaningful.
type HostValue struct {
	bits int64
	ref  ObjectRef
	tag  ValueTag
}

// Void returns the void value.
func Void() HostValue { return HostValue{tag: TagVoid} }

// Int returns a 32-bit integer value.
func Int(v int32) HostValue { return HostValue{tag: TagInt, bits: int64(v)} }

// Long returns a 64-bit integer value.
func Long(v int64) HostValue { return HostValue{tag: TagLong, bits: v} }

// Bool returns a boolean value.
func Bool(v bool) HostValue {
	hv := HostValue{tag: TagBool}
	if v {
		hv.bits = 1
	}
	return hv
}

// Object returns an object reference value. A zero ref is a typed null.
func Object(ref ObjectRef) HostValue { return HostValue{tag: TagObject, ref: ref} }

// Tag returns the value's discriminator.
func (v HostValue) Tag() ValueTag { return v.tag }

// Int returns the int32 payload if the value is tagged int.
func (v HostValue) Int() (int32, bool) {
	if v.tag != TagInt {
		return 0, false
	}
	return int32(v.bits), true //nolint:gosec // G115: constructed from int32
}

// Long returns the int64 payload if the value is tagged long.
func (v HostValue) Long() (int64, bool) {
	if v.tag != TagLong {
		return 0, false
	}
	return v.bits, true
}

// Bool returns the boolean payload if the value is tagged boolean.
func (v HostValue) Bool() (bool, bool) {
	if v.tag != TagBool {
		return false, false
	}
	return v.bits != 0, true
}

// Object returns the object reference if the value is tagged object.
func (v HostValue) Object() (ObjectRef, bool) {
	if v.tag != TagObject {
		return 0, false
	}
	return v.ref, true
}

func (v HostValue) String() string {
	switch v.tag {
	case TagInt, TagLong:
		return fmt.Sprintf("%s(%d)", v.tag, v.bits)
	case TagBool:
		return fmt.Sprintf("boolean(%t)", v.bits != 0)
	case TagObject:
		if v.ref.IsNull() {
			return "object(null)"
		}
		return fmt.Sprintf("object(#%d)", v.ref)
	default:
		return v.tag.String()
	}
}
