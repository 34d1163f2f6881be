package wazero

import (
	"context"
	"sync"

	"github.com/reglet-dev/hostbridge/callback"
	"github.com/tetratelabs/wazero/api"
)

// contextKey is a private type for context keys.
type contextKey struct {
	name string
}

var guestNameKey = &contextKey{name: "guest_name"}

// WithGuestName adds the guest name to the context.
// Adapter log records use it to identify which guest made a request.
func WithGuestName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, guestNameKey, name)
}

// GuestNameFromContext retrieves the guest name from the context.
func GuestNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(guestNameKey).(string)
	return name, ok
}

// GetGuestName extracts the guest name from context, falling back to the module name.
func GetGuestName(ctx context.Context, mod api.Module) string {
	if name, ok := GuestNameFromContext(ctx); ok {
		return name
	}
	return mod.Name()
}

// lastErrors holds the most recent request fault per calling module.
type lastErrors struct {
	byModule map[string]callback.ErrorResponse
	mu       sync.Mutex
}

func newLastErrors() *lastErrors {
	return &lastErrors{byModule: make(map[string]callback.ErrorResponse)}
}

func (l *lastErrors) set(mod api.Module, resp callback.ErrorResponse) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byModule[mod.Name()] = resp
}

func (l *lastErrors) clear(mod api.Module) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byModule, mod.Name())
}

// take returns and forgets the last fault of mod.
func (l *lastErrors) take(mod api.Module) (callback.ErrorResponse, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	resp, ok := l.byModule[mod.Name()]
	delete(l.byModule, mod.Name())
	return resp, ok
}
