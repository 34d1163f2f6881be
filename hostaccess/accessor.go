// Package hostaccess invokes host-runtime members by symbolic descriptor and
// converts results into typed host values.
//
// The Accessor is the only component that talks to ports.HostRuntime. It
// parses each descriptor's signature, checks arguments against it, resolves
// the member (re-resolving on every call unless the resolution cache is
// enabled) and maps runtime failures onto the bridge error taxonomy.
package hostaccess

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/hostbridge/domain/entities"
	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
	"github.com/reglet-dev/hostbridge/domain/ports"
)

// Accessor performs typed member access on a host runtime.
type Accessor struct {
	rt     ports.HostRuntime
	cache  *resolutionCache
	logger *slog.Logger
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithResolutionCache caches resolved member IDs keyed by descriptor.
// Call Invalidate when the host unloads classes.
func WithResolutionCache() Option {
	return func(a *Accessor) {
		a.cache = newResolutionCache()
	}
}

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(a *Accessor) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAccessor creates an Accessor over rt.
func NewAccessor(rt ports.HostRuntime, opts ...Option) *Accessor {
	a := &Accessor{rt: rt, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Invalidate drops all cached resolutions. It is a no-op without a cache.
func (a *Accessor) Invalidate() {
	if a.cache != nil {
		a.cache.purge()
	}
}

// Resolve checks that desc parses and names a member the runtime knows.
func (a *Accessor) Resolve(desc entities.MemberDescriptor) error {
	_, _, err := a.resolve(desc, desc.Kind)
	return err
}

// GetStaticField reads a static field. A missing type or field, or a field
// whose runtime value does not carry the declared tag, is a
// MemberResolutionError.
func (a *Accessor) GetStaticField(desc entities.MemberDescriptor) (entities.HostValue, error) {
	id, sig, err := a.resolve(desc, entities.KindStaticField)
	if err != nil {
		return entities.Void(), err
	}

	v, err := a.rt.GetStaticField(id)
	if err != nil {
		return entities.Void(), a.mapInvokeError(desc, 0, err)
	}
	if v.Tag() != sig.Return.Tag {
		return entities.Void(), &domainerrors.MemberResolutionError{
			Member: desc,
			Err:    fmt.Errorf("field holds %s, descriptor declares %s", v.Tag(), sig.Return),
		}
	}
	return v, nil
}

// CallStaticMethod invokes a static method with the given arguments.
func (a *Accessor) CallStaticMethod(desc entities.MemberDescriptor, args ...entities.HostValue) (entities.HostValue, error) {
	id, sig, err := a.resolve(desc, entities.KindStaticMethod)
	if err != nil {
		return entities.Void(), err
	}
	if err := a.checkArgs(desc, sig, args); err != nil {
		return entities.Void(), err
	}

	v, err := a.rt.CallStatic(id, args)
	if err != nil {
		return entities.Void(), a.mapInvokeError(desc, 0, err)
	}
	return a.checkResult(desc, sig, v)
}

// CallInstanceMethod invokes a method on obj. A null or stale obj is an
// InvalidReferenceError.
func (a *Accessor) CallInstanceMethod(obj entities.ObjectRef, desc entities.MemberDescriptor, args ...entities.HostValue) (entities.HostValue, error) {
	if obj.IsNull() {
		return entities.Void(), &domainerrors.InvalidReferenceError{Target: desc.String()}
	}
	if _, live := a.rt.IsInstanceOf(obj, desc.Owner); !live {
		return entities.Void(), &domainerrors.InvalidReferenceError{Target: desc.String(), Ref: obj}
	}

	id, sig, err := a.resolve(desc, entities.KindMethod)
	if err != nil {
		return entities.Void(), err
	}
	if err := a.checkArgs(desc, sig, args); err != nil {
		return entities.Void(), err
	}

	v, err := a.rt.CallMethod(obj, id, args)
	if err != nil {
		return entities.Void(), a.mapInvokeError(desc, obj, err)
	}
	return a.checkResult(desc, sig, v)
}

// CheckReference fails unless obj is a live instance of desc's owner.
// A null or stale obj is an InvalidReferenceError; an object of another
// class is an ArgumentMismatchError.
func (a *Accessor) CheckReference(obj entities.ObjectRef, desc entities.MemberDescriptor) error {
	if obj.IsNull() {
		return &domainerrors.InvalidReferenceError{Target: desc.String()}
	}
	is, live := a.rt.IsInstanceOf(obj, desc.Owner)
	if !live {
		return &domainerrors.InvalidReferenceError{Target: desc.String(), Ref: obj}
	}
	if !is {
		return &domainerrors.ArgumentMismatchError{
			Target: desc.String(),
			Index:  -1,
			Reason: fmt.Sprintf("object #%d is not a %s", obj, desc.Owner),
		}
	}
	return nil
}

// Release drops a host object the caller created but did not hand off.
func (a *Accessor) Release(obj entities.ObjectRef) {
	if !obj.IsNull() {
		a.rt.ReleaseObject(obj)
	}
}

func (a *Accessor) resolve(desc entities.MemberDescriptor, kind entities.MemberKind) (ports.MemberID, Signature, error) {
	if desc.Kind != kind {
		return 0, Signature{}, &domainerrors.MemberResolutionError{
			Member: desc,
			Err:    fmt.Errorf("descriptor kind %q used as %q", desc.Kind, kind),
		}
	}

	sig, err := ParseSignature(desc.Signature)
	if err != nil {
		return 0, Signature{}, &domainerrors.MemberResolutionError{Member: desc, Err: err}
	}
	if sig.Method != (kind != entities.KindStaticField) {
		return 0, Signature{}, &domainerrors.MemberResolutionError{
			Member: desc,
			Err:    fmt.Errorf("%w: %s signature for %s member", ErrMalformedSignature, desc.Signature, kind),
		}
	}

	if a.cache != nil {
		if id, ok := a.cache.get(desc); ok {
			return id, sig, nil
		}
	}

	id, err := a.rt.ResolveMember(desc)
	if err != nil {
		a.logger.Debug("hostaccess: member resolution failed", "member", desc.String(), "error", err)
		return 0, Signature{}, &domainerrors.MemberResolutionError{Member: desc, Err: err}
	}

	if a.cache != nil {
		a.cache.put(desc, id)
	}
	return id, sig, nil
}

func (a *Accessor) checkArgs(desc entities.MemberDescriptor, sig Signature, args []entities.HostValue) error {
	if len(args) != len(sig.Params) {
		return &domainerrors.ArgumentMismatchError{
			Target: desc.String(),
			Index:  -1,
			Reason: fmt.Sprintf("want %d args, got %d", len(sig.Params), len(args)),
		}
	}

	for i, param := range sig.Params {
		arg := args[i]
		if arg.Tag() != param.Tag {
			return &domainerrors.ArgumentMismatchError{
				Target: desc.String(),
				Index:  i,
				Reason: fmt.Sprintf("want %s, got %s", param, arg.Tag()),
			}
		}
		ref, _ := arg.Object()
		if param.Tag != entities.TagObject || ref.IsNull() {
			continue
		}
		is, live := a.rt.IsInstanceOf(ref, param.Class)
		if !live {
			return &domainerrors.InvalidReferenceError{Target: desc.String(), Ref: ref}
		}
		if !is {
			return &domainerrors.ArgumentMismatchError{
				Target: desc.String(),
				Index:  i,
				Reason: fmt.Sprintf("object #%d is not a %s", ref, param.Class),
			}
		}
	}
	return nil
}

func (a *Accessor) checkResult(desc entities.MemberDescriptor, sig Signature, v entities.HostValue) (entities.HostValue, error) {
	if v.Tag() != sig.Return.Tag {
		return entities.Void(), &domainerrors.InvocationError{
			Target: desc.String(),
			Err:    fmt.Errorf("host returned %s, signature declares %s", v.Tag(), sig.Return),
		}
	}
	return v, nil
}

func (a *Accessor) mapInvokeError(desc entities.MemberDescriptor, obj entities.ObjectRef, err error) error {
	switch {
	case errors.Is(err, ports.ErrStaleReference):
		return &domainerrors.InvalidReferenceError{Target: desc.String(), Ref: obj}
	case errors.Is(err, ports.ErrNoSuchClass), errors.Is(err, ports.ErrNoSuchMember):
		// The member vanished after resolution; cached IDs are no longer trustworthy.
		a.Invalidate()
		return &domainerrors.MemberResolutionError{Member: desc, Err: err}
	default:
		return &domainerrors.InvocationError{Target: desc.String(), Err: err}
	}
}
