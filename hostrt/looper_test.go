package hostrt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLooper_RunDueOrdering(t *testing.T) {
	clock := newFakeClock()
	l := NewLooper(WithClock(clock.Now))

	var order []string
	require.True(t, l.PostDelayed(func() { order = append(order, "late") }, 200*time.Millisecond))
	require.True(t, l.PostDelayed(func() { order = append(order, "early-1") }, 100*time.Millisecond))
	require.True(t, l.PostDelayed(func() { order = append(order, "early-2") }, 100*time.Millisecond))

	assert.Equal(t, 0, l.RunDue())

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 2, l.RunDue())
	assert.Equal(t, []string{"early-1", "early-2"}, order)

	due, ok := l.NextDue()
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(100*time.Millisecond), due)

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, l.RunDue())
	assert.Equal(t, 0, l.Pending())
}

func TestLooper_RunDueLeavesReposts(t *testing.T) {
	l := NewLooper(WithClock(newFakeClock().Now))

	runs := 0
	var tick func()
	tick = func() {
		runs++
		l.Post(tick)
	}
	l.Post(tick)

	assert.Equal(t, 1, l.RunDue())
	assert.Equal(t, 1, l.RunDue())
	assert.Equal(t, 2, runs)
	assert.Equal(t, 1, l.Pending())
}

func TestLooper_QuitDropsPending(t *testing.T) {
	clock := newFakeClock()
	l := NewLooper(WithClock(clock.Now))

	ran := false
	l.PostDelayed(func() { ran = true }, time.Second)
	l.Quit()

	assert.True(t, l.Quitting())
	assert.Equal(t, 0, l.Pending())
	assert.False(t, l.PostDelayed(func() {}, 0))

	clock.Advance(time.Second)
	assert.Equal(t, 0, l.RunDue())
	assert.False(t, ran)
}

func TestLooper_Loop(t *testing.T) {
	l := NewLooper()

	done := make(chan struct{})
	l.PostDelayed(func() { close(done) }, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- l.Loop(ctx) }()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("message did not run")
	}

	l.Quit()
	assert.NoError(t, <-errCh)
}

func TestLooper_LoopContextCancel(t *testing.T) {
	l := NewLooper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Loop(ctx), context.Canceled)
}
