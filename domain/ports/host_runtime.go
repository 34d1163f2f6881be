package ports

import (
	"errors"
	"fmt"

	"github.com/reglet-dev/hostbridge/domain/entities"
)

// Sentinel errors a HostRuntime reports during resolution and dispatch.
var (
	ErrNoSuchClass    = errors.New("no such class")
	ErrNoSuchMember   = errors.New("no such member")
	ErrStaleReference = errors.New("stale object reference")
)

// MemberID is a runtime-specific handle for a resolved member.
// It is only meaningful to the runtime that issued it.
type MemberID uint64

// HostException is raised by host code that was invoked successfully but
// failed while running.
type HostException struct {
	Class   string
	Message string
}

func (e *HostException) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// HostRuntime is the host runtime's object and method dispatch mechanism.
// Every call is a synchronous round-trip.
type HostRuntime interface {
	// ResolveMember finds a member by its descriptor.
	// Returns ErrNoSuchClass or ErrNoSuchMember (possibly wrapped).
	ResolveMember(desc entities.MemberDescriptor) (MemberID, error)

	// GetStaticField reads a resolved static field.
	GetStaticField(id MemberID) (entities.HostValue, error)

	// CallStatic invokes a resolved static method.
	CallStatic(id MemberID, args []entities.HostValue) (entities.HostValue, error)

	// CallMethod invokes a resolved instance method on obj.
	// Returns ErrStaleReference if obj is no longer live.
	CallMethod(obj entities.ObjectRef, id MemberID, args []entities.HostValue) (entities.HostValue, error)

	// IsInstanceOf reports whether obj is assignable to class.
	// live is false when obj does not refer to a live object.
	IsInstanceOf(obj entities.ObjectRef, class string) (is bool, live bool)

	// ReleaseObject drops obj. Releasing a dead reference is a no-op.
	ReleaseObject(obj entities.ObjectRef)
}
