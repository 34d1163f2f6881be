// Package errors provides the bridge's error taxonomy.
// All error types support error unwrapping via errors.As() and errors.Is().
//
// Every error carries a Severity. Environment errors mean the embedding is
// misconfigured and stay fatal at the call site. Request errors are returned
// to the boundary caller as recoverable results. Fatal errors (allocation
// failure) always abort.
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/reglet-dev/hostbridge/domain/entities"
)

// Severity classifies how far an error may propagate.
type Severity string

const (
	SeverityEnvironment Severity = "environment"
	SeverityRequest     Severity = "request"
	SeverityFatal       Severity = "fatal"
)

// BridgeError is implemented by every error in the taxonomy.
type BridgeError interface {
	error
	Severity() Severity
	Code() string
}

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// SeverityOf returns the severity of err. Errors outside the taxonomy are
// treated as request-level so that they never terminate the caller.
func SeverityOf(err error) Severity {
	var be BridgeError
	if stdErrors.As(err, &be) {
		return be.Severity()
	}
	return SeverityRequest
}

// IsRecoverable reports whether err must be returned to the boundary caller
// instead of aborting the call.
func IsRecoverable(err error) bool {
	return err != nil && SeverityOf(err) == SeverityRequest
}

// CodeOf returns the machine-readable code of err, or "internal".
func CodeOf(err error) string {
	var be BridgeError
	if stdErrors.As(err, &be) {
		return be.Code()
	}
	return "internal"
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
		Code:    "internal",
	}
}

func detail(be BridgeError) *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: be.Error(), Type: string(be.Severity()), Code: be.Code()}
}

// MemberResolutionError reports a host type or member that could not be
// resolved, or a field whose runtime type does not match its descriptor.
type MemberResolutionError struct {
	Err    error
	Member entities.MemberDescriptor
}

func (e *MemberResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s: %v", e.Member, e.Err)
}

func (e *MemberResolutionError) Unwrap() error      { return e.Err }
func (e *MemberResolutionError) Severity() Severity { return SeverityEnvironment }
func (e *MemberResolutionError) Code() string       { return "member_resolution" }

// ToErrorDetail implements DetailedError.
func (e *MemberResolutionError) ToErrorDetail() *entities.ErrorDetail { return detail(e) }

// ArgumentMismatchError reports arguments that do not satisfy a signature.
type ArgumentMismatchError struct {
	Target string // member or function name
	Reason string
	Index  int // -1 when the count is wrong
}

func (e *ArgumentMismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("argument mismatch calling %s: %s", e.Target, e.Reason)
	}
	return fmt.Sprintf("argument mismatch calling %s: arg %d: %s", e.Target, e.Index, e.Reason)
}

func (e *ArgumentMismatchError) Severity() Severity { return SeverityRequest }
func (e *ArgumentMismatchError) Code() string       { return "argument_mismatch" }

// ToErrorDetail implements DetailedError.
func (e *ArgumentMismatchError) ToErrorDetail() *entities.ErrorDetail { return detail(e) }

// InvalidReferenceError reports a null or stale host object reference.
type InvalidReferenceError struct {
	Target string
	Ref    entities.ObjectRef
}

func (e *InvalidReferenceError) Error() string {
	if e.Ref.IsNull() {
		return fmt.Sprintf("null object reference for %s", e.Target)
	}
	return fmt.Sprintf("stale object reference #%d for %s", e.Ref, e.Target)
}

func (e *InvalidReferenceError) Severity() Severity { return SeverityEnvironment }
func (e *InvalidReferenceError) Code() string       { return "invalid_reference" }

// ToErrorDetail implements DetailedError.
func (e *InvalidReferenceError) ToErrorDetail() *entities.ErrorDetail { return detail(e) }

// InvocationError reports a host call that was dispatched but failed.
type InvocationError struct {
	Err    error
	Target string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invocation of %s failed: %v", e.Target, e.Err)
}

func (e *InvocationError) Unwrap() error      { return e.Err }
func (e *InvocationError) Severity() Severity { return SeverityRequest }
func (e *InvocationError) Code() string       { return "invocation" }

// ToErrorDetail implements DetailedError.
func (e *InvocationError) ToErrorDetail() *entities.ErrorDetail { return detail(e) }

// SchedulerUnavailableError reports that no scheduler or execution context
// can be obtained from the host.
type SchedulerUnavailableError struct {
	Err    error
	Reason string
}

func (e *SchedulerUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scheduler unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("scheduler unavailable: %s", e.Reason)
}

func (e *SchedulerUnavailableError) Unwrap() error      { return e.Err }
func (e *SchedulerUnavailableError) Severity() Severity { return SeverityEnvironment }
func (e *SchedulerUnavailableError) Code() string       { return "scheduler_unavailable" }

// ToErrorDetail implements DetailedError.
func (e *SchedulerUnavailableError) ToErrorDetail() *entities.ErrorDetail { return detail(e) }

// InvalidRequestError reports a malformed request from script code.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid request field '%s': %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

func (e *InvalidRequestError) Severity() Severity { return SeverityRequest }
func (e *InvalidRequestError) Code() string       { return "invalid_request" }

// ToErrorDetail implements DetailedError.
func (e *InvalidRequestError) ToErrorDetail() *entities.ErrorDetail { return detail(e) }

// OutOfMemoryError represents a memory allocation failure.
type OutOfMemoryError struct {
	Requested int // Requested allocation size
	Current   int // Current total allocated
	Limit     int // Maximum allowed
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("memory allocation failed: requested %d bytes, current %d bytes, limit %d bytes",
		e.Requested, e.Current, e.Limit)
}

func (e *OutOfMemoryError) Severity() Severity { return SeverityFatal }
func (e *OutOfMemoryError) Code() string       { return "out_of_memory" }

// ToErrorDetail implements DetailedError.
func (e *OutOfMemoryError) ToErrorDetail() *entities.ErrorDetail { return detail(e) }

// DecodeError reports buffer content the loader could not parse.
type DecodeError struct {
	Err    error
	Format string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s buffer failed: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error      { return e.Err }
func (e *DecodeError) Severity() Severity { return SeverityRequest }
func (e *DecodeError) Code() string       { return "decode" }

// ToErrorDetail implements DetailedError.
func (e *DecodeError) ToErrorDetail() *entities.ErrorDetail { return detail(e) }

// ProtocolViolationError reports misuse of a boundary protocol: a callback
// that did not set exactly one return value, or a handle released twice.
type ProtocolViolationError struct {
	Protocol string
	Reason   string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("%s protocol violation: %s", e.Protocol, e.Reason)
}

func (e *ProtocolViolationError) Severity() Severity { return SeverityRequest }
func (e *ProtocolViolationError) Code() string       { return "protocol_violation" }

// ToErrorDetail implements DetailedError.
func (e *ProtocolViolationError) ToErrorDetail() *entities.ErrorDetail { return detail(e) }
