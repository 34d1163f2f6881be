// Package testutil provides common fixtures and assertions for bridge tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/reglet-dev/hostbridge/callback"
	"github.com/reglet-dev/hostbridge/hostrt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Epoch is the start time of every FakeClock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// FakeClock is a manually advanced clock.
type FakeClock struct {
	now time.Time
	mu  sync.Mutex
}

// NewFakeClock returns a clock set to Epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: Epoch}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Recorder is a ports.FunctionInvoker that records invoked function ids.
type Recorder struct {
	fired []uint64
	err   error
	mu    sync.Mutex
}

// Invoke records fn and returns the configured error.
func (r *Recorder) Invoke(_ context.Context, fn uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, fn)
	return r.err
}

// FailWith makes subsequent invocations return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Fired returns a copy of the recorded ids in invocation order.
func (r *Recorder) Fired() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.fired...)
}

// Env is a reference runtime with the platform installed over a fake clock.
type Env struct {
	Runtime  *hostrt.Runtime
	Platform *hostrt.Platform
	Looper   *hostrt.Looper
	Clock    *FakeClock
	Recorder *Recorder
}

// NewEnv installs the platform on a fresh runtime. opts are applied after
// the looper and recorder, so they may override either.
func NewEnv(t *testing.T, opts ...hostrt.PlatformOption) *Env {
	t.Helper()

	env := &Env{
		Runtime:  hostrt.New(),
		Clock:    NewFakeClock(),
		Recorder: &Recorder{},
	}
	env.Looper = hostrt.NewLooper(hostrt.WithClock(env.Clock.Now))

	base := []hostrt.PlatformOption{
		hostrt.WithLooper(env.Looper),
		hostrt.WithFunctions(env.Recorder),
	}
	platform, err := hostrt.InstallPlatform(env.Runtime, append(base, opts...)...)
	require.NoError(t, err)
	env.Platform = platform
	return env
}

// Advance moves the clock forward and runs every due message.
func (e *Env) Advance(d time.Duration) int {
	e.Clock.Advance(d)
	return e.Looper.RunDue()
}

// CaptureLogs returns a debug-level text logger and the buffer it writes to.
func CaptureLogs() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// AssertJSONEqual compares two JSON strings for equality, ignoring formatting
func AssertJSONEqual(t *testing.T, expected, actual string, msgAndArgs ...interface{}) {
	t.Helper()

	var expectedJSON, actualJSON interface{}
	require.NoError(t, json.Unmarshal([]byte(expected), &expectedJSON), "expected JSON is invalid")
	require.NoError(t, json.Unmarshal([]byte(actual), &actualJSON), "actual JSON is invalid")

	assert.Equal(t, expectedJSON, actualJSON, msgAndArgs...)
}

// AssertErrorResponse decodes data as an ErrorResponse and checks its type
// identifier and numeric code.
func AssertErrorResponse(t *testing.T, data []byte, wantError string, wantCode int) callback.ErrorResponse {
	t.Helper()

	resp, err := callback.ParseErrorResponse(data)
	require.NoError(t, err, "not an error response: %s", data)
	assert.Equal(t, wantError, resp.Error)
	assert.Equal(t, wantCode, resp.Code)
	return resp
}
