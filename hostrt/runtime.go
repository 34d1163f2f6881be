// Package hostrt is an in-process reference host runtime.
//
// It implements ports.HostRuntime with a small class/object registry whose
// members are Go functions, plus a single-goroutine message looper that plays
// the role of the host's UI thread. It exists so the bridge can be exercised
// end to end in tests and in the bridgectl demo; production embeddings supply
// their own HostRuntime.
package hostrt

import (
	"fmt"
	"sync"

	"github.com/reglet-dev/hostbridge/domain/entities"
	"github.com/reglet-dev/hostbridge/domain/ports"
)

// ObjectClass is the root every class is assignable to.
const ObjectClass = "java/lang/Object"

// Call is the invocation record handed to a MethodFunc.
type Call struct {
	Runtime *Runtime
	Value   any // Go value backing Self; nil for static calls
	Args    []entities.HostValue
	Self    entities.ObjectRef
}

// MethodFunc implements a host method. Returning an error models a host
// exception raised by the invoked code.
type MethodFunc func(call Call) (entities.HostValue, error)

type memberKey struct {
	name string
	sig  string
	kind entities.MemberKind
}

type member struct {
	owner *class
	fn    MethodFunc
	key   memberKey
	value entities.HostValue
	id    ports.MemberID
	calls int
}

type class struct {
	members map[memberKey]*member
	name    string
	supers  []string
}

type object struct {
	class *class
	value any
}

// Runtime is the reference host runtime.
type Runtime struct {
	classes    map[string]*class
	members    map[ports.MemberID]*member
	objects    map[entities.ObjectRef]*object
	nextMember ports.MemberID
	nextRef    entities.ObjectRef
	mu         sync.RWMutex
}

var _ ports.HostRuntime = (*Runtime)(nil)

// New creates an empty runtime.
func New() *Runtime {
	return &Runtime{
		classes: make(map[string]*class),
		members: make(map[ports.MemberID]*member),
		objects: make(map[entities.ObjectRef]*object),
	}
}

// DefineClass registers a class assignable to the given supertypes.
// Redefining a class keeps its members and replaces its supertypes.
func (r *Runtime) DefineClass(name string, supers ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.classes[name]; ok {
		c.supers = supers
		return
	}
	r.classes[name] = &class{name: name, supers: supers, members: make(map[memberKey]*member)}
}

// SetStaticField defines or overwrites a static field value.
func (r *Runtime) SetStaticField(className, name, sig string, v entities.HostValue) error {
	return r.define(className, memberKey{name: name, sig: sig, kind: entities.KindStaticField}, v, nil)
}

// DefineStaticMethod defines a static method.
func (r *Runtime) DefineStaticMethod(className, name, sig string, fn MethodFunc) error {
	return r.define(className, memberKey{name: name, sig: sig, kind: entities.KindStaticMethod}, entities.Void(), fn)
}

// DefineMethod defines an instance method.
func (r *Runtime) DefineMethod(className, name, sig string, fn MethodFunc) error {
	return r.define(className, memberKey{name: name, sig: sig, kind: entities.KindMethod}, entities.Void(), fn)
}

// RemoveMember deletes a member, as if the host class no longer declared it.
func (r *Runtime) RemoveMember(className, name, sig string, kind entities.MemberKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[className]
	if !ok {
		return
	}
	key := memberKey{name: name, sig: sig, kind: kind}
	if m, ok := c.members[key]; ok {
		delete(r.members, m.id)
		delete(c.members, key)
	}
}

func (r *Runtime) define(className string, key memberKey, v entities.HostValue, fn MethodFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[className]
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrNoSuchClass, className)
	}
	if m, ok := c.members[key]; ok {
		m.value = v
		m.fn = fn
		return nil
	}
	r.nextMember++
	m := &member{id: r.nextMember, owner: c, key: key, value: v, fn: fn}
	c.members[key] = m
	r.members[m.id] = m
	return nil
}

// NewObject allocates an object of className backed by value and returns a
// live reference to it.
func (r *Runtime) NewObject(className string, value any) (entities.ObjectRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[className]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ports.ErrNoSuchClass, className)
	}
	r.nextRef++
	r.objects[r.nextRef] = &object{class: c, value: value}
	return r.nextRef, nil
}

// Value returns the Go value backing ref.
func (r *Runtime) Value(ref entities.ObjectRef) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[ref]
	if !ok {
		return nil, false
	}
	return obj.value, true
}

// DeleteRef drops ref. Later use of it is a stale reference.
func (r *Runtime) DeleteRef(ref entities.ObjectRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objects, ref)
}

// ReleaseObject implements ports.HostRuntime.
func (r *Runtime) ReleaseObject(obj entities.ObjectRef) {
	r.DeleteRef(obj)
}

// LiveObjects returns the number of live object references.
func (r *Runtime) LiveObjects() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// Calls returns how many times the named member was invoked or read.
func (r *Runtime) Calls(className, name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[className]
	if !ok {
		return 0
	}
	n := 0
	for key, m := range c.members {
		if key.name == name {
			n += m.calls
		}
	}
	return n
}

// ResolveMember implements ports.HostRuntime.
func (r *Runtime) ResolveMember(desc entities.MemberDescriptor) (ports.MemberID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[desc.Owner]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ports.ErrNoSuchClass, desc.Owner)
	}
	m, ok := c.members[memberKey{name: desc.Name, sig: desc.Signature, kind: desc.Kind}]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ports.ErrNoSuchMember, desc)
	}
	return m.id, nil
}

// GetStaticField implements ports.HostRuntime.
func (r *Runtime) GetStaticField(id ports.MemberID) (entities.HostValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok || m.key.kind != entities.KindStaticField {
		return entities.Void(), fmt.Errorf("%w: field id %d", ports.ErrNoSuchMember, id)
	}
	m.calls++
	return m.value, nil
}

// CallStatic implements ports.HostRuntime.
func (r *Runtime) CallStatic(id ports.MemberID, args []entities.HostValue) (entities.HostValue, error) {
	m, err := r.lookupMethod(id, entities.KindStaticMethod)
	if err != nil {
		return entities.Void(), err
	}
	return r.invoke(m, Call{Runtime: r, Args: args})
}

// CallMethod implements ports.HostRuntime.
func (r *Runtime) CallMethod(obj entities.ObjectRef, id ports.MemberID, args []entities.HostValue) (entities.HostValue, error) {
	m, err := r.lookupMethod(id, entities.KindMethod)
	if err != nil {
		return entities.Void(), err
	}

	r.mu.RLock()
	o, ok := r.objects[obj]
	var assignable bool
	if ok {
		assignable = r.assignableLocked(o.class, m.owner.name)
	}
	r.mu.RUnlock()

	if !ok {
		return entities.Void(), fmt.Errorf("%w: #%d", ports.ErrStaleReference, obj)
	}
	if !assignable {
		return entities.Void(), &ports.HostException{
			Class:   "java/lang/IncompatibleClassChangeError",
			Message: fmt.Sprintf("%s is not a %s", o.class.name, m.owner.name),
		}
	}
	return r.invoke(m, Call{Runtime: r, Self: obj, Value: o.value, Args: args})
}

// IsInstanceOf implements ports.HostRuntime.
func (r *Runtime) IsInstanceOf(obj entities.ObjectRef, className string) (is bool, live bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.objects[obj]
	if !ok {
		return false, false
	}
	return r.assignableLocked(o.class, className), true
}

func (r *Runtime) assignableLocked(c *class, target string) bool {
	if target == ObjectClass || c.name == target {
		return true
	}
	for _, s := range c.supers {
		if s == target {
			return true
		}
		if sc, ok := r.classes[s]; ok && r.assignableLocked(sc, target) {
			return true
		}
	}
	return false
}

func (r *Runtime) lookupMethod(id ports.MemberID, kind entities.MemberKind) (*member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok || m.key.kind != kind {
		return nil, fmt.Errorf("%w: method id %d", ports.ErrNoSuchMember, id)
	}
	m.calls++
	return m, nil
}

// invoke runs fn outside the runtime lock so host code may call back into
// the runtime. Panics become host exceptions.
func (r *Runtime) invoke(m *member, call Call) (v entities.HostValue, err error) {
	defer func() {
		if p := recover(); p != nil {
			v = entities.Void()
			err = &ports.HostException{Class: "java/lang/RuntimeException", Message: fmt.Sprint(p)}
		}
	}()
	if m.fn == nil {
		return entities.Void(), nil
	}
	return m.fn(call)
}
