package entities

import "fmt"

// MemberKind identifies how a host member is reached.
type MemberKind string

const (
	// KindStaticField is a static field read.
	KindStaticField MemberKind = "static_field"
	// KindStaticMethod is a static (class-level) method call.
	KindStaticMethod MemberKind = "static_method"
	// KindMethod is an instance method call.
	KindMethod MemberKind = "method"
)

// MemberDescriptor names a host-runtime member symbolically.
// Descriptors are plain values; the host accessor re-resolves them on
// every use unless a resolution cache is configured.
type MemberDescriptor struct {
	// Owner is the owning type in slash form, e.g. "android/os/Build$VERSION".
	Owner string `json:"owner" yaml:"owner" validate:"required"`

	// Name is the member name.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Signature is a JVM-style type descriptor, e.g. "I" or "(J)V".
	Signature string `json:"signature" yaml:"signature" validate:"required"`

	// Kind selects field, static method or instance method access.
	Kind MemberKind `json:"kind" yaml:"kind" validate:"required,oneof=static_field static_method method"`
}

// String renders the descriptor as owner.name:signature.
func (d MemberDescriptor) String() string {
	return fmt.Sprintf("%s.%s:%s", d.Owner, d.Name, d.Signature)
}

// IsZero reports whether the descriptor is empty.
func (d MemberDescriptor) IsZero() bool {
	return d == MemberDescriptor{}
}
