// Package bridge exposes the boundary entry points the script engine calls.
//
// A Bridge composes the host accessor, the timer bridge, the buffer exchange
// and the script callback registry over one host runtime. Every entry point
// is synchronous, takes its context explicitly and returns a typed error;
// deciding whether an error aborts the guest is left to the adapter that
// exposes the entry point (see infrastructure/wazero).
package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/hostbridge/buffer"
	"github.com/reglet-dev/hostbridge/callback"
	"github.com/reglet-dev/hostbridge/domain/entities"
	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
	"github.com/reglet-dev/hostbridge/domain/ports"
	"github.com/reglet-dev/hostbridge/hostaccess"
	"github.com/reglet-dev/hostbridge/internal/abi"
	"github.com/reglet-dev/hostbridge/internal/callctx"
	"github.com/reglet-dev/hostbridge/timer"
)

// Entry point names, as used in logs and request contexts.
const (
	EntryGetPlatformVersion   = "get_platform_version"
	EntryCreateTimeoutHandler = "create_timeout_handler"
	EntryPostDelayed          = "post_delayed"
	EntryWorkerSendBytes      = "worker_send_bytes"
	EntryCall                 = "call_native"
)

// Bridge is the native side of the boundary.
type Bridge struct {
	accessor  *hostaccess.Accessor
	table     *hostaccess.Table
	timers    *timer.Bridge
	buffers   *buffer.Exchange
	callbacks *callback.Registry
	heap      *abi.Heap
	logger    *slog.Logger
	holder    entities.ObjectRef
}

type options struct {
	table     *hostaccess.Table
	loader    ports.BufferLoader
	heap      *abi.Heap
	logger    *slog.Logger
	functions []callback.Option
	maxBuffer int
	holder    entities.ObjectRef
	cache     bool
	legacy    bool
	verify    bool
}

// Option configures a Bridge.
type Option func(*options)

// WithTable replaces the default descriptor table.
func WithTable(t *hostaccess.Table) Option {
	return func(o *options) { o.table = t }
}

// WithResolutionCache enables caching of resolved host members.
func WithResolutionCache(enabled bool) Option {
	return func(o *options) { o.cache = enabled }
}

// WithLegacyIntervalCodes maps unknown interval codes to Repeating.
func WithLegacyIntervalCodes(enabled bool) Option {
	return func(o *options) { o.legacy = enabled }
}

// WithLoader sets the user-buffer decoder used by WorkerSendBytes.
func WithLoader(l ports.BufferLoader) Option {
	return func(o *options) { o.loader = l }
}

// WithMaxBufferSize caps buffers crossing the boundary.
func WithMaxBufferSize(n int) Option {
	return func(o *options) { o.maxBuffer = n }
}

// WithHeap sets the native heap script functions allocate in.
func WithHeap(h *abi.Heap) Option {
	return func(o *options) { o.heap = h }
}

// WithLogger sets the logger shared by all components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHolder sets the host object $invokeRef calls update_ui on.
func WithHolder(ref entities.ObjectRef) Option {
	return func(o *options) { o.holder = ref }
}

// WithStartupVerification resolves every table descriptor in New so a
// mismatched host fails construction instead of the first call.
func WithStartupVerification() Option {
	return func(o *options) { o.verify = true }
}

// WithScriptFunctions registers extra script functions next to the builtins.
func WithScriptFunctions(opts ...callback.Option) Option {
	return func(o *options) { o.functions = append(o.functions, opts...) }
}

// New creates a Bridge over rt.
func New(rt ports.HostRuntime, opts ...Option) (*Bridge, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.table == nil {
		o.table = hostaccess.DefaultTable()
	}
	if o.heap == nil {
		o.heap = abi.NewHeap()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	accOpts := []hostaccess.Option{hostaccess.WithLogger(o.logger)}
	if o.cache {
		accOpts = append(accOpts, hostaccess.WithResolutionCache())
	}
	accessor := hostaccess.NewAccessor(rt, accOpts...)

	if o.verify {
		if err := o.table.Verify(accessor); err != nil {
			return nil, fmt.Errorf("bridge: host runtime does not match descriptor table: %w", err)
		}
	}

	b := &Bridge{
		accessor: accessor,
		table:    o.table,
		timers: timer.New(accessor,
			timer.WithTable(o.table),
			timer.WithLegacyIntervalCodes(o.legacy),
			timer.WithLogger(o.logger),
		),
		buffers: buffer.New(
			buffer.WithLoader(o.loader),
			buffer.WithMaxSize(o.maxBuffer),
			buffer.WithLogger(o.logger),
		),
		heap:   o.heap,
		logger: o.logger,
		holder: o.holder,
	}

	regOpts := append([]callback.Option{
		callback.WithMiddleware(callback.PanicRecoveryMiddleware(), callback.LoggingMiddleware(o.logger)),
	}, b.builtins()...)
	regOpts = append(regOpts, o.functions...)

	reg, err := callback.NewRegistry(regOpts...)
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	b.callbacks = reg
	return b, nil
}

// Heap returns the native heap.
func (b *Bridge) Heap() *abi.Heap { return b.heap }

// Accessor returns the host accessor.
func (b *Bridge) Accessor() *hostaccess.Accessor { return b.accessor }

// Table returns the descriptor table.
func (b *Bridge) Table() *hostaccess.Table { return b.table }

// Callbacks returns the script function registry.
func (b *Bridge) Callbacks() *callback.Registry { return b.callbacks }

// GetPlatformVersion reads the host platform version.
func (b *Bridge) GetPlatformVersion(ctx context.Context) (int32, error) {
	ctx = callctx.WithEntryPoint(ctx, EntryGetPlatformVersion)

	v, err := b.accessor.GetStaticField(b.table.MustGet(hostaccess.PlatformVersion))
	if err != nil {
		return 0, b.fail(ctx, err)
	}
	n, _ := v.Int()
	return n, nil
}

// CreateTimeoutHandler obtains the host scheduler.
func (b *Bridge) CreateTimeoutHandler(ctx context.Context) (entities.SchedulerHandle, error) {
	ctx = callctx.WithEntryPoint(ctx, EntryCreateTimeoutHandler)

	h, err := b.timers.SchedulerHandle(ctx)
	if err != nil {
		return 0, b.fail(ctx, err)
	}
	return h, nil
}

// PostDelayed schedules function fn on h after delayMs. flag is the wire
// interval code: 1 for one-shot, 2 for repeating.
func (b *Bridge) PostDelayed(ctx context.Context, h entities.SchedulerHandle, fn uint64, delayMs int64, flag int32) error {
	ctx = callctx.WithEntryPoint(ctx, EntryPostDelayed)

	req, err := b.timers.Request(fn, delayMs, flag)
	if err != nil {
		return b.fail(ctx, err)
	}
	if _, err := b.timers.Schedule(ctx, h, req); err != nil {
		return b.fail(ctx, err)
	}
	return nil
}

// WorkerSendBytes decodes the user buffer at raw into an identifier string
// allocated in alloc. The caller owns the result.
//
// When notify is non-zero it is scheduled as a one-shot, zero-delay timer on
// the current scheduler before returning, so the script is called back on the
// scheduler goroutine after this call completes. If that scheduling fails the
// string is released and the error returned.
func (b *Bridge) WorkerSendBytes(ctx context.Context, mem ports.GuestMemory, raw entities.RawBuffer, alloc abi.Allocator, notify uint64) (*abi.NativeString, error) {
	ctx = callctx.WithEntryPoint(ctx, EntryWorkerSendBytes)

	ns, err := b.sendBytes(ctx, mem, raw, alloc, notify)
	if err != nil {
		return nil, b.fail(ctx, err)
	}
	return ns, nil
}

func (b *Bridge) sendBytes(ctx context.Context, mem ports.GuestMemory, raw entities.RawBuffer, alloc abi.Allocator, notify uint64) (*abi.NativeString, error) {
	ns, err := b.buffers.ExportIdentifier(ctx, mem, raw, alloc)
	if err != nil {
		return nil, err
	}
	if notify == 0 {
		return ns, nil
	}

	if err := b.notify(ctx, notify); err != nil {
		if relErr := ns.Release(); relErr != nil {
			b.logger.ErrorContext(ctx, "bridge: release after failed notify", append(callctx.LogArgs(ctx), "error", relErr)...)
		}
		return nil, err
	}
	return ns, nil
}

func (b *Bridge) notify(ctx context.Context, fn uint64) error {
	h, err := b.timers.SchedulerHandle(ctx)
	if err != nil {
		return err
	}
	_, err = b.timers.Schedule(ctx, h, entities.TimerRequest{
		FunctionID: fn,
		DelayMs:    0,
		Interval:   entities.OneShot,
	})
	return err
}

// Call invokes a registered script function.
func (b *Bridge) Call(ctx context.Context, name string, args ...entities.ScriptValue) (entities.ScriptValue, error) {
	ctx = callctx.WithEntryPoint(ctx, EntryCall)

	v, err := b.callbacks.Invoke(ctx, name, args...)
	if err != nil {
		return entities.Undefined(), b.fail(ctx, err)
	}
	return v, nil
}

// fail logs err at a level matching its severity and returns it unchanged.
func (b *Bridge) fail(ctx context.Context, err error) error {
	args := append(callctx.LogArgs(ctx), "code", domainerrors.CodeOf(err), "error", err)
	if domainerrors.IsRecoverable(err) {
		b.logger.WarnContext(ctx, "bridge: request failed", args...)
	} else {
		b.logger.ErrorContext(ctx, "bridge: environment failure", args...)
	}
	return err
}
