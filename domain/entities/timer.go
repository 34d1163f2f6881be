package entities

import (
	"fmt"
	"time"
)

// IntervalKind selects one-shot or repeating delivery of a timer.
type IntervalKind uint8

const (
	// OneShot fires once after the delay. Wire code 1.
	OneShot IntervalKind = iota + 1
	// Repeating fires every delay until the scheduler drops it. Wire code 2.
	Repeating
)

// Code returns the integer wire code of the kind.
func (k IntervalKind) Code() int32 { return int32(k) }

func (k IntervalKind) String() string {
	switch k {
	case OneShot:
		return "one-shot"
	case Repeating:
		return "repeating"
	default:
		return fmt.Sprintf("interval(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the enumerated kinds.
func (k IntervalKind) Valid() bool {
	return k == OneShot || k == Repeating
}

// TimerRequest is a script-originated request to run a callback later.
// FunctionID is the engine's opaque identifier of the callback; ownership of
// it passes to the host scheduler once the request is scheduled.
type TimerRequest struct {
	FunctionID uint64
	DelayMs    int64
	Interval   IntervalKind
}

// Delay returns the delay as a time.Duration.
func (r TimerRequest) Delay() time.Duration {
	return time.Duration(r.DelayMs) * time.Millisecond
}

// ScheduleStatus is the terminal state of a scheduling attempt.
type ScheduleStatus string

const (
	Scheduled        ScheduleStatus = "scheduled"
	SchedulingFailed ScheduleStatus = "failed"
)

// ScheduleOutcome reports what happened to a TimerRequest.
// Runnable is informational only; the bridge does not keep it.
type ScheduleOutcome struct {
	Status   ScheduleStatus
	Reason   string
	Runnable ObjectRef
}
