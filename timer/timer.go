// Package timer turns script-originated timer requests into runnables
// submitted to the host scheduler.
//
// Every step of a scheduling attempt is a synchronous host call. A failure at
// any step ends the attempt; nothing is retried and the bridge keeps no
// reference to objects it created along the way.
package timer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/hostbridge/domain/entities"
	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
	"github.com/reglet-dev/hostbridge/hostaccess"
	"github.com/reglet-dev/hostbridge/internal/callctx"
)

// ParseIntervalFlag maps a wire interval code onto an IntervalKind.
// Codes other than 1 and 2 are rejected unless legacy is set, in which case
// they mean Repeating.
func ParseIntervalFlag(code int32, legacy bool) (entities.IntervalKind, error) {
	switch {
	case code == entities.OneShot.Code():
		return entities.OneShot, nil
	case code == entities.Repeating.Code():
		return entities.Repeating, nil
	case legacy:
		return entities.Repeating, nil
	default:
		return 0, &domainerrors.InvalidRequestError{
			Field:  "interval",
			Reason: fmt.Sprintf("unknown interval code %d", code),
		}
	}
}

// Bridge schedules timers through a host accessor.
type Bridge struct {
	accessor *hostaccess.Accessor
	table    *hostaccess.Table
	logger   *slog.Logger
	legacy   bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTable replaces the default descriptor table.
func WithTable(t *hostaccess.Table) Option {
	return func(b *Bridge) {
		if t != nil {
			b.table = t
		}
	}
}

// WithLegacyIntervalCodes maps unknown interval codes to Repeating instead of
// rejecting them.
func WithLegacyIntervalCodes(enabled bool) Option {
	return func(b *Bridge) { b.legacy = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a timer bridge.
func New(accessor *hostaccess.Accessor, opts ...Option) *Bridge {
	b := &Bridge{
		accessor: accessor,
		table:    hostaccess.DefaultTable(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Request builds a validated TimerRequest from raw entry-point arguments.
func (b *Bridge) Request(fn uint64, delayMs int64, flag int32) (entities.TimerRequest, error) {
	kind, err := ParseIntervalFlag(flag, b.legacy)
	if err != nil {
		return entities.TimerRequest{}, err
	}
	req := entities.TimerRequest{FunctionID: fn, DelayMs: delayMs, Interval: kind}
	if err := validateRequest(req); err != nil {
		return entities.TimerRequest{}, err
	}
	return req, nil
}

// SchedulerHandle obtains the host scheduler from the scheduler factory.
// Every failure is a SchedulerUnavailableError wrapping the cause.
func (b *Bridge) SchedulerHandle(ctx context.Context) (entities.SchedulerHandle, error) {
	desc := b.table.MustGet(hostaccess.SchedulerFactory)
	v, err := b.accessor.CallStaticMethod(desc)
	if err != nil {
		return 0, &domainerrors.SchedulerUnavailableError{Reason: "scheduler factory failed", Err: err}
	}
	ref, _ := v.Object()
	if ref.IsNull() {
		return 0, &domainerrors.SchedulerUnavailableError{Reason: "scheduler factory returned null"}
	}

	b.logger.DebugContext(ctx, "timer: scheduler obtained", append(callctx.LogArgs(ctx), "handle", uint64(ref))...)
	return entities.SchedulerHandle(ref), nil
}

// Schedule resolves the current execution context and schedules req on h.
func (b *Bridge) Schedule(ctx context.Context, h entities.SchedulerHandle, req entities.TimerRequest) (entities.ScheduleOutcome, error) {
	if err := validateRequest(req); err != nil {
		return failed(err), err
	}

	desc := b.table.MustGet(hostaccess.CurrentContext)
	v, err := b.accessor.CallStaticMethod(desc)
	if err != nil {
		return failed(err), err
	}
	execCtx, _ := v.Object()
	if execCtx.IsNull() {
		err := &domainerrors.SchedulerUnavailableError{Reason: "no current execution context"}
		return failed(err), err
	}

	return b.ScheduleIn(ctx, execCtx, h, req)
}

// ScheduleIn schedules req on h within an explicit execution context.
// It creates exactly one runnable and submits it exactly once.
func (b *Bridge) ScheduleIn(ctx context.Context, execCtx entities.ObjectRef, h entities.SchedulerHandle, req entities.TimerRequest) (entities.ScheduleOutcome, error) {
	if err := validateRequest(req); err != nil {
		return failed(err), err
	}
	if execCtx.IsNull() {
		err := &domainerrors.SchedulerUnavailableError{Reason: "no current execution context"}
		return failed(err), err
	}

	postDesc := b.table.MustGet(hostaccess.PostDelayed)
	if err := b.accessor.CheckReference(h.Ref(), postDesc); err != nil {
		return failed(err), err
	}

	factory := hostaccess.TimeoutRunnable
	if req.Interval == entities.Repeating {
		factory = hostaccess.IntervalRunnable
	}

	v, err := b.accessor.CallStaticMethod(
		b.table.MustGet(factory),
		entities.Object(execCtx),
		entities.Long(int64(req.FunctionID)), //nolint:gosec // G115: function ids round-trip through jlong
		entities.Long(req.DelayMs),
	)
	if err != nil {
		return failed(err), err
	}
	runnable, _ := v.Object()
	if runnable.IsNull() {
		err := &domainerrors.InvocationError{Target: factory, Err: fmt.Errorf("factory returned null runnable")}
		return failed(err), err
	}

	// Until postDelayed accepts it, the runnable belongs to this call.
	v, err = b.accessor.CallInstanceMethod(h.Ref(), postDesc, entities.Object(runnable), entities.Long(req.DelayMs))
	if err == nil {
		if posted, _ := v.Bool(); !posted {
			err = &domainerrors.InvocationError{Target: hostaccess.PostDelayed, Err: fmt.Errorf("scheduler rejected runnable")}
		}
	}
	if err != nil {
		b.accessor.Release(runnable)
		return failed(err), err
	}

	b.logger.DebugContext(ctx, "timer: scheduled", append(callctx.LogArgs(ctx),
		"function_id", req.FunctionID,
		"delay_ms", req.DelayMs,
		"interval", req.Interval.String(),
	)...)

	return entities.ScheduleOutcome{Status: entities.Scheduled, Runnable: runnable}, nil
}

func validateRequest(req entities.TimerRequest) error {
	switch {
	case req.FunctionID == 0:
		return &domainerrors.InvalidRequestError{Field: "function_id", Reason: "must be non-zero"}
	case req.DelayMs < 0:
		return &domainerrors.InvalidRequestError{Field: "delay", Reason: fmt.Sprintf("negative delay %dms", req.DelayMs)}
	case !req.Interval.Valid():
		return &domainerrors.InvalidRequestError{Field: "interval", Reason: fmt.Sprintf("unknown interval %s", req.Interval)}
	}
	return nil
}

func failed(err error) entities.ScheduleOutcome {
	return entities.ScheduleOutcome{Status: entities.SchedulingFailed, Reason: err.Error()}
}
