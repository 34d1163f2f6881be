package timer

import (
	"context"
	"testing"
	"time"

	"github.com/reglet-dev/hostbridge/domain/entities"
	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
	"github.com/reglet-dev/hostbridge/hostaccess"
	"github.com/reglet-dev/hostbridge/hostrt"
	"github.com/reglet-dev/hostbridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type TimerSuite struct {
	suite.Suite
	env      *testutil.Env
	rt       *hostrt.Runtime
	platform *hostrt.Platform
	looper   *hostrt.Looper
	bridge   *Bridge
}

func (s *TimerSuite) SetupTest() {
	s.env = testutil.NewEnv(s.T())
	s.rt = s.env.Runtime
	s.platform = s.env.Platform
	s.looper = s.env.Looper
	s.bridge = New(hostaccess.NewAccessor(s.rt))
}

func (s *TimerSuite) advance(d time.Duration) {
	s.env.Advance(d)
}

func (s *TimerSuite) fired() []uint64 {
	return s.env.Recorder.Fired()
}

func (s *TimerSuite) TestSchedulerHandle() {
	h, err := s.bridge.SchedulerHandle(context.Background())
	s.Require().NoError(err)
	s.Equal(s.platform.Handler(), h.Ref())
}

func (s *TimerSuite) TestSchedulerHandle_Unavailable() {
	rt := hostrt.New()
	_, err := hostrt.InstallPlatform(rt)
	s.Require().NoError(err)

	_, err = New(hostaccess.NewAccessor(rt)).SchedulerHandle(context.Background())
	var unavailable *domainerrors.SchedulerUnavailableError
	s.ErrorAs(err, &unavailable)
}

func (s *TimerSuite) TestOneShot_Delay1000() {
	ctx := context.Background()
	h, err := s.bridge.SchedulerHandle(ctx)
	s.Require().NoError(err)

	req, err := s.bridge.Request(11, 1000, 1)
	s.Require().NoError(err)

	out, err := s.bridge.Schedule(ctx, h, req)
	s.Require().NoError(err)
	s.Equal(entities.Scheduled, out.Status)
	s.False(out.Runnable.IsNull())

	s.Equal(1, s.rt.Calls(hostrt.ClassV8Runnable, "createTimeoutRunnable"))
	s.Equal(0, s.rt.Calls(hostrt.ClassV8Runnable, "createIntervalRunnable"))
	s.Equal(1, s.rt.Calls(hostrt.ClassHandler, "postDelayed"))
	s.Equal(1, s.looper.Pending())

	due, ok := s.looper.NextDue()
	s.Require().True(ok)
	s.Equal(s.env.Clock.Now().Add(time.Second), due)

	s.advance(999 * time.Millisecond)
	s.Empty(s.fired())
	s.advance(time.Millisecond)
	s.Equal([]uint64{11}, s.fired())

	s.advance(time.Hour)
	s.Equal([]uint64{11}, s.fired())
	s.Equal(1, s.rt.Calls(hostrt.ClassHandler, "postDelayed"), "no second submission")
}

func (s *TimerSuite) TestRepeating() {
	ctx := context.Background()
	h, err := s.bridge.SchedulerHandle(ctx)
	s.Require().NoError(err)

	req, err := s.bridge.Request(5, 100, 2)
	s.Require().NoError(err)
	_, err = s.bridge.Schedule(ctx, h, req)
	s.Require().NoError(err)

	s.Equal(0, s.rt.Calls(hostrt.ClassV8Runnable, "createTimeoutRunnable"))
	s.Equal(1, s.rt.Calls(hostrt.ClassV8Runnable, "createIntervalRunnable"))
	s.Equal(1, s.rt.Calls(hostrt.ClassHandler, "postDelayed"))

	s.advance(100 * time.Millisecond)
	s.advance(100 * time.Millisecond)
	s.Equal([]uint64{5, 5}, s.fired())
}

func (s *TimerSuite) TestLegacyFlagSelectsRepeatingFactory() {
	b := New(hostaccess.NewAccessor(s.rt), WithLegacyIntervalCodes(true))
	ctx := context.Background()

	h, err := b.SchedulerHandle(ctx)
	s.Require().NoError(err)
	req, err := b.Request(9, 10, 7)
	s.Require().NoError(err)
	s.Equal(entities.Repeating, req.Interval)

	_, err = b.Schedule(ctx, h, req)
	s.Require().NoError(err)
	s.Equal(1, s.rt.Calls(hostrt.ClassV8Runnable, "createIntervalRunnable"))
	s.Equal(1, s.rt.Calls(hostrt.ClassHandler, "postDelayed"))
}

func (s *TimerSuite) TestNoExecutionContext() {
	rt := hostrt.New()
	p, err := hostrt.InstallPlatform(rt, hostrt.WithLooper(s.looper), hostrt.WithoutExecutionContext())
	s.Require().NoError(err)
	b := New(hostaccess.NewAccessor(rt))

	out, err := b.Schedule(context.Background(), entities.SchedulerHandle(p.Handler()),
		entities.TimerRequest{FunctionID: 1, DelayMs: 0, Interval: entities.OneShot})

	var unavailable *domainerrors.SchedulerUnavailableError
	s.ErrorAs(err, &unavailable)
	s.Equal(entities.SchedulingFailed, out.Status)
	s.NotEmpty(out.Reason)
	s.Equal(0, rt.Calls(hostrt.ClassV8Runnable, "createTimeoutRunnable"))
}

func (s *TimerSuite) TestScheduleIn_ExplicitContext() {
	h, err := s.bridge.SchedulerHandle(context.Background())
	s.Require().NoError(err)

	out, err := s.bridge.ScheduleIn(context.Background(), s.platform.ExecutionContext(), h,
		entities.TimerRequest{FunctionID: 3, DelayMs: 0, Interval: entities.OneShot})
	s.Require().NoError(err)
	s.Equal(entities.Scheduled, out.Status)
	s.Equal(0, s.rt.Calls(hostrt.ClassContext, "getCurrent"))

	s.advance(0)
	s.Equal([]uint64{3}, s.fired())
}

func (s *TimerSuite) TestSchedulerRejects() {
	h, err := s.bridge.SchedulerHandle(context.Background())
	s.Require().NoError(err)
	s.looper.Quit()

	out, err := s.bridge.Schedule(context.Background(), h,
		entities.TimerRequest{FunctionID: 1, DelayMs: 10, Interval: entities.OneShot})

	var invErr *domainerrors.InvocationError
	s.ErrorAs(err, &invErr)
	s.Equal(entities.SchedulingFailed, out.Status)
	s.True(domainerrors.IsRecoverable(err))
}

func (s *TimerSuite) TestStaleScheduler() {
	h, err := s.bridge.SchedulerHandle(context.Background())
	s.Require().NoError(err)
	s.rt.DeleteRef(h.Ref())

	_, err = s.bridge.Schedule(context.Background(), h,
		entities.TimerRequest{FunctionID: 1, DelayMs: 10, Interval: entities.OneShot})
	var refErr *domainerrors.InvalidReferenceError
	s.ErrorAs(err, &refErr)
}

func (s *TimerSuite) TestFailedScheduleLeavesNoObjects() {
	ctx := context.Background()
	req := entities.TimerRequest{FunctionID: 1, DelayMs: 10, Interval: entities.OneShot}

	h, err := s.bridge.SchedulerHandle(ctx)
	s.Require().NoError(err)
	stale, err := s.rt.NewObject(hostrt.ClassHandler, s.looper)
	s.Require().NoError(err)
	s.rt.DeleteRef(stale)

	tests := []struct {
		name    string
		handle  entities.SchedulerHandle
		setup   func()
		wantErr any
	}{
		{name: "null handle", handle: 0, wantErr: new(*domainerrors.InvalidReferenceError)},
		{name: "stale handle", handle: entities.SchedulerHandle(stale), wantErr: new(*domainerrors.InvalidReferenceError)},
		{
			name:    "not a scheduler",
			handle:  entities.SchedulerHandle(s.platform.ExecutionContext()),
			wantErr: new(*domainerrors.ArgumentMismatchError),
		},
		{name: "rejected", handle: h, setup: s.looper.Quit, wantErr: new(*domainerrors.InvocationError)},
	}

	for _, tt := range tests {
		if tt.setup != nil {
			tt.setup()
		}
		before := s.rt.LiveObjects()

		out, err := s.bridge.Schedule(ctx, tt.handle, req)
		s.ErrorAs(err, tt.wantErr, tt.name)
		s.Equal(entities.SchedulingFailed, out.Status, tt.name)
		s.Equal(before, s.rt.LiveObjects(), "%s: no host object outlives the call", tt.name)
	}
	s.Equal(0, s.looper.Pending())
}

func (s *TimerSuite) TestInvalidRequests() {
	h, err := s.bridge.SchedulerHandle(context.Background())
	s.Require().NoError(err)

	for name, req := range map[string]entities.TimerRequest{
		"zero function": {FunctionID: 0, DelayMs: 1, Interval: entities.OneShot},
		"negative":      {FunctionID: 1, DelayMs: -1, Interval: entities.OneShot},
		"no interval":   {FunctionID: 1, DelayMs: 1},
	} {
		_, err := s.bridge.Schedule(context.Background(), h, req)
		var reqErr *domainerrors.InvalidRequestError
		s.ErrorAs(err, &reqErr, name)
	}
	s.Equal(0, s.rt.Calls(hostrt.ClassContext, "getCurrent"))
}

func TestTimerSuite(t *testing.T) {
	suite.Run(t, new(TimerSuite))
}

func TestParseIntervalFlag(t *testing.T) {
	tests := []struct {
		code    int32
		legacy  bool
		want    entities.IntervalKind
		wantErr bool
	}{
		{code: 1, want: entities.OneShot},
		{code: 2, want: entities.Repeating},
		{code: 0, wantErr: true},
		{code: 3, wantErr: true},
		{code: -1, wantErr: true},
		{code: 1, legacy: true, want: entities.OneShot},
		{code: 0, legacy: true, want: entities.Repeating},
		{code: 42, legacy: true, want: entities.Repeating},
	}

	for _, tt := range tests {
		got, err := ParseIntervalFlag(tt.code, tt.legacy)
		if tt.wantErr {
			var reqErr *domainerrors.InvalidRequestError
			require.ErrorAs(t, err, &reqErr)
			assert.Equal(t, "interval", reqErr.Field)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "code %d legacy %v", tt.code, tt.legacy)
	}
}
