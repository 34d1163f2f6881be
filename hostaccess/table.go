package hostaccess

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/reglet-dev/hostbridge/domain/entities"
)

// validate is a package-level singleton; creating a validator per call is expensive.
var validate = validator.New()

// Well-known descriptor names used by the bridge.
const (
	PlatformVersion  = "platform_version"
	SchedulerFactory = "scheduler_factory"
	CurrentContext   = "current_context"
	TimeoutRunnable  = "timeout_runnable"
	IntervalRunnable = "interval_runnable"
	PostDelayed      = "post_delayed"
	UpdateUI         = "update_ui"
)

// RequiredDescriptors lists the names every Table must define.
var RequiredDescriptors = []string{
	PlatformVersion,
	SchedulerFactory,
	CurrentContext,
	TimeoutRunnable,
	IntervalRunnable,
	PostDelayed,
	UpdateUI,
}

// DefaultDescriptors returns the descriptor set of the stock host runtime.
func DefaultDescriptors() map[string]entities.MemberDescriptor {
	return map[string]entities.MemberDescriptor{
		PlatformVersion: {
			Owner: "android/os/Build$VERSION", Name: "SDK_INT", Signature: "I",
			Kind: entities.KindStaticField,
		},
		SchedulerFactory: {
			Owner: "com/node/v8/V8Utils", Name: "getHandler", Signature: "()Landroid/os/Handler;",
			Kind: entities.KindStaticMethod,
		},
		CurrentContext: {
			Owner: "com/node/v8/V8Context", Name: "getCurrent", Signature: "()Lcom/node/v8/V8Context;",
			Kind: entities.KindStaticMethod,
		},
		TimeoutRunnable: {
			Owner: "com/node/v8/V8Runnable", Name: "createTimeoutRunnable",
			Signature: "(Lcom/node/v8/V8Context;JJ)Lcom/node/v8/V8Runnable;",
			Kind:      entities.KindStaticMethod,
		},
		IntervalRunnable: {
			Owner: "com/node/v8/V8Runnable", Name: "createIntervalRunnable",
			Signature: "(Lcom/node/v8/V8Context;JJ)Lcom/node/v8/V8Runnable;",
			Kind:      entities.KindStaticMethod,
		},
		PostDelayed: {
			Owner: "android/os/Handler", Name: "postDelayed", Signature: "(Ljava/lang/Runnable;J)Z",
			Kind: entities.KindMethod,
		},
		UpdateUI: {
			Owner: "com/node/v8/V8Context", Name: "updateUI", Signature: "(I)V",
			Kind: entities.KindMethod,
		},
	}
}

// Table is a validated, immutable set of named member descriptors.
// Call sites look descriptors up by name instead of spelling out
// owner/name/signature triples inline.
type Table struct {
	entries map[string]entities.MemberDescriptor
	sigs    map[string]Signature
}

// NewTable validates entries and builds a Table. Every descriptor must pass
// struct validation, have a parseable signature consistent with its kind, and
// every RequiredDescriptors name must be present.
func NewTable(entries map[string]entities.MemberDescriptor) (*Table, error) {
	t := &Table{
		entries: make(map[string]entities.MemberDescriptor, len(entries)),
		sigs:    make(map[string]Signature, len(entries)),
	}

	var errs []error
	for _, name := range RequiredDescriptors {
		if _, ok := entries[name]; !ok {
			errs = append(errs, fmt.Errorf("descriptor %q: missing", name))
		}
	}

	for name, desc := range entries {
		if err := validate.Struct(desc); err != nil {
			errs = append(errs, fmt.Errorf("descriptor %q: %w", name, err))
			continue
		}
		sig, err := ParseSignature(desc.Signature)
		if err != nil {
			errs = append(errs, fmt.Errorf("descriptor %q: %w", name, err))
			continue
		}
		if sig.Method == (desc.Kind == entities.KindStaticField) {
			errs = append(errs, fmt.Errorf("descriptor %q: signature %q does not fit kind %s", name, desc.Signature, desc.Kind))
			continue
		}
		t.entries[name] = desc
		t.sigs[name] = sig
	}

	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return nil, errors.Join(errs...)
	}
	return t, nil
}

// DefaultTable returns the Table built from DefaultDescriptors.
func DefaultTable() *Table {
	t, err := NewTable(DefaultDescriptors())
	if err != nil {
		panic(fmt.Sprintf("hostaccess: default descriptors invalid: %v", err))
	}
	return t
}

// Get returns the descriptor registered under name.
func (t *Table) Get(name string) (entities.MemberDescriptor, bool) {
	d, ok := t.entries[name]
	return d, ok
}

// MustGet returns the descriptor registered under name and panics if it is
// absent. Only use it for RequiredDescriptors names.
func (t *Table) MustGet(name string) entities.MemberDescriptor {
	d, ok := t.entries[name]
	if !ok {
		panic(fmt.Sprintf("hostaccess: descriptor %q not in table", name))
	}
	return d
}

// Signature returns the parsed signature of a named descriptor.
func (t *Table) Signature(name string) (Signature, bool) {
	s, ok := t.sigs[name]
	return s, ok
}

// Names returns the sorted descriptor names.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Verify resolves every descriptor against the accessor's runtime once.
// It is meant to run at start-up so signature mismatches surface before the
// first script call.
func (t *Table) Verify(a *Accessor) error {
	var errs []error
	for _, name := range t.Names() {
		if err := a.Resolve(t.entries[name]); err != nil {
			errs = append(errs, fmt.Errorf("descriptor %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
