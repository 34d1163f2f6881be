package hostrt

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Looper is a single-threaded delayed message queue. Messages posted with
// equal due times run in posting order.
type Looper struct {
	now   func() time.Time
	wake  chan struct{}
	queue messageQueue
	seq   uint64
	mu    sync.Mutex
	quit  bool
}

// LooperOption configures a Looper.
type LooperOption func(*Looper)

// WithClock replaces time.Now. Tests use it with RunDue to step time
// deterministically.
func WithClock(now func() time.Time) LooperOption {
	return func(l *Looper) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLooper creates an empty looper.
func NewLooper(opts ...LooperOption) *Looper {
	l := &Looper{
		now:  time.Now,
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PostDelayed queues fn to run after d. It returns false once the looper has
// quit, in which case fn will never run.
func (l *Looper) PostDelayed(fn func(), d time.Duration) bool {
	if d < 0 {
		d = 0
	}

	l.mu.Lock()
	if l.quit {
		l.mu.Unlock()
		return false
	}
	l.seq++
	heap.Push(&l.queue, &message{fn: fn, due: l.now().Add(d), seq: l.seq})
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Post queues fn to run as soon as possible.
func (l *Looper) Post(fn func()) bool {
	return l.PostDelayed(fn, 0)
}

// Pending returns the number of queued messages.
func (l *Looper) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

// NextDue returns the due time of the earliest queued message.
func (l *Looper) NextDue() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.queue.Len() == 0 {
		return time.Time{}, false
	}
	return l.queue[0].due, true
}

// RunDue runs every message that is due now and returns how many ran.
// Messages posted while draining are left for the next call, so a
// zero-delay repeating message cannot starve the caller.
func (l *Looper) RunDue() int {
	l.mu.Lock()
	now := l.now()
	watermark := l.seq
	l.mu.Unlock()

	ran := 0
	for {
		l.mu.Lock()
		if l.quit || l.queue.Len() == 0 {
			l.mu.Unlock()
			return ran
		}
		next := l.queue[0]
		if next.due.After(now) || next.seq > watermark {
			l.mu.Unlock()
			return ran
		}
		heap.Pop(&l.queue)
		l.mu.Unlock()

		next.fn()
		ran++
	}
}

// Loop runs messages as they come due until ctx is done or Quit is called.
func (l *Looper) Loop(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		l.RunDue()

		l.mu.Lock()
		if l.quit {
			l.mu.Unlock()
			return nil
		}
		wait := time.Hour
		if l.queue.Len() > 0 {
			wait = max(l.queue[0].due.Sub(l.now()), 0)
		}
		l.mu.Unlock()

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		case <-timer.C:
		}
	}
}

// Quit drops all pending messages and rejects new ones. Dropped messages
// never run.
func (l *Looper) Quit() {
	l.mu.Lock()
	l.quit = true
	l.queue = nil
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Quitting reports whether Quit has been called.
func (l *Looper) Quitting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quit
}

type message struct {
	due time.Time
	fn  func()
	seq uint64
}

// messageQueue is a min-heap ordered by (due, seq).
type messageQueue []*message

func (q messageQueue) Len() int { return len(q) }

func (q messageQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q messageQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *messageQueue) Push(x any) { *q = append(*q, x.(*message)) }

func (q *messageQueue) Pop() any {
	old := *q
	n := len(old)
	m := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return m
}
