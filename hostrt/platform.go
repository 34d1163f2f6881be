package hostrt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reglet-dev/hostbridge/domain/entities"
	"github.com/reglet-dev/hostbridge/domain/ports"
	"github.com/reglet-dev/hostbridge/internal/callctx"
)

// Classes installed by InstallPlatform.
const (
	ClassBuildVersion = "android/os/Build$VERSION"
	ClassUtils        = "com/node/v8/V8Utils"
	ClassContext      = "com/node/v8/V8Context"
	ClassRunnable     = "java/lang/Runnable"
	ClassV8Runnable   = "com/node/v8/V8Runnable"
	ClassHandler      = "android/os/Handler"
)

// DefaultSDKVersion is the platform version reported unless overridden.
const DefaultSDKVersion int32 = 33

// Platform is the set of well-known host classes the bridge talks to,
// installed into a Runtime and backed by a Looper.
type Platform struct {
	rt         *Runtime
	looper     *Looper
	functions  ports.FunctionInvoker
	logger     *slog.Logger
	onUpdateUI func(int32)
	execCtx    entities.ObjectRef
	handler    entities.ObjectRef
}

type platformConfig struct {
	looper      *Looper
	functions   ports.FunctionInvoker
	logger      *slog.Logger
	onUpdateUI  func(int32)
	sdkVersion  int32
	omitVersion bool
	noContext   bool
}

// PlatformOption configures InstallPlatform.
type PlatformOption func(*platformConfig)

// WithSDKVersion sets the value of Build$VERSION.SDK_INT.
func WithSDKVersion(v int32) PlatformOption {
	return func(c *platformConfig) { c.sdkVersion = v }
}

// WithoutSDKVersion leaves Build$VERSION.SDK_INT undeclared.
func WithoutSDKVersion() PlatformOption {
	return func(c *platformConfig) { c.omitVersion = true }
}

// WithLooper backs the scheduler with l. Without a looper the scheduler
// factory returns null.
func WithLooper(l *Looper) PlatformOption {
	return func(c *platformConfig) { c.looper = l }
}

// WithFunctions sets the script-engine callback target of fired timers.
func WithFunctions(inv ports.FunctionInvoker) PlatformOption {
	return func(c *platformConfig) { c.functions = inv }
}

// WithUIHook is called with the argument of every V8Context.updateUI call.
func WithUIHook(fn func(int32)) PlatformOption {
	return func(c *platformConfig) { c.onUpdateUI = fn }
}

// WithoutExecutionContext makes V8Context.getCurrent return null.
func WithoutExecutionContext() PlatformOption {
	return func(c *platformConfig) { c.noContext = true }
}

// WithPlatformLogger sets the logger used for timer delivery.
func WithPlatformLogger(l *slog.Logger) PlatformOption {
	return func(c *platformConfig) { c.logger = l }
}

// runnable is the Go value behind a V8Runnable object.
type runnable struct {
	execCtx entities.ObjectRef
	fn      uint64
	delay   time.Duration
	repeat  bool
}

// InstallPlatform defines the platform classes in rt.
func InstallPlatform(rt *Runtime, opts ...PlatformOption) (*Platform, error) {
	cfg := platformConfig{sdkVersion: DefaultSDKVersion, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Platform{
		rt:         rt,
		looper:     cfg.looper,
		functions:  cfg.functions,
		logger:     cfg.logger,
		onUpdateUI: cfg.onUpdateUI,
	}

	rt.DefineClass(ClassBuildVersion)
	rt.DefineClass(ClassUtils)
	rt.DefineClass(ClassContext)
	rt.DefineClass(ClassRunnable)
	rt.DefineClass(ClassV8Runnable, ClassRunnable)
	rt.DefineClass(ClassHandler)

	if !cfg.omitVersion {
		if err := rt.SetStaticField(ClassBuildVersion, "SDK_INT", "I", entities.Int(cfg.sdkVersion)); err != nil {
			return nil, err
		}
	}

	defs := []struct {
		fn     MethodFunc
		class  string
		name   string
		sig    string
		static bool
	}{
		{class: ClassUtils, name: "getHandler", sig: "()Landroid/os/Handler;", static: true, fn: p.getHandler},
		{class: ClassContext, name: "getCurrent", sig: "()Lcom/node/v8/V8Context;", static: true, fn: p.getCurrent},
		{class: ClassContext, name: "updateUI", sig: "(I)V", fn: p.updateUI},
		{
			class: ClassV8Runnable, name: "createTimeoutRunnable", static: true,
			sig: "(Lcom/node/v8/V8Context;JJ)Lcom/node/v8/V8Runnable;", fn: p.newRunnable(false),
		},
		{
			class: ClassV8Runnable, name: "createIntervalRunnable", static: true,
			sig: "(Lcom/node/v8/V8Context;JJ)Lcom/node/v8/V8Runnable;", fn: p.newRunnable(true),
		},
		{class: ClassRunnable, name: "run", sig: "()V", fn: p.runMethod},
		{class: ClassHandler, name: "postDelayed", sig: "(Ljava/lang/Runnable;J)Z", fn: p.postDelayed},
	}
	for _, d := range defs {
		var err error
		if d.static {
			err = rt.DefineStaticMethod(d.class, d.name, d.sig, d.fn)
		} else {
			err = rt.DefineMethod(d.class, d.name, d.sig, d.fn)
		}
		if err != nil {
			return nil, fmt.Errorf("hostrt: define %s.%s: %w", d.class, d.name, err)
		}
	}

	if cfg.looper != nil {
		ref, err := rt.NewObject(ClassHandler, cfg.looper)
		if err != nil {
			return nil, err
		}
		p.handler = ref
	}
	if !cfg.noContext {
		ref, err := rt.NewObject(ClassContext, nil)
		if err != nil {
			return nil, err
		}
		p.execCtx = ref
	}
	return p, nil
}

// Runtime returns the runtime the platform is installed in.
func (p *Platform) Runtime() *Runtime { return p.rt }

// Looper returns the looper backing the scheduler, or nil.
func (p *Platform) Looper() *Looper { return p.looper }

// ExecutionContext returns the V8Context object getCurrent hands out.
func (p *Platform) ExecutionContext() entities.ObjectRef { return p.execCtx }

// Handler returns the scheduler object getHandler hands out.
func (p *Platform) Handler() entities.ObjectRef { return p.handler }

func (p *Platform) getHandler(Call) (entities.HostValue, error) {
	return entities.Object(p.handler), nil
}

func (p *Platform) getCurrent(Call) (entities.HostValue, error) {
	return entities.Object(p.execCtx), nil
}

func (p *Platform) updateUI(call Call) (entities.HostValue, error) {
	v, _ := call.Args[0].Int()
	if p.onUpdateUI != nil {
		p.onUpdateUI(v)
	}
	return entities.Void(), nil
}

func (p *Platform) newRunnable(repeat bool) MethodFunc {
	return func(call Call) (entities.HostValue, error) {
		execCtx, _ := call.Args[0].Object()
		fn, _ := call.Args[1].Long()
		delay, _ := call.Args[2].Long()

		ref, err := p.rt.NewObject(ClassV8Runnable, &runnable{
			execCtx: execCtx,
			fn:      uint64(fn), //nolint:gosec // G115: function ids round-trip through jlong
			delay:   time.Duration(delay) * time.Millisecond,
			repeat:  repeat,
		})
		if err != nil {
			return entities.Void(), err
		}
		return entities.Object(ref), nil
	}
}

func (p *Platform) runMethod(call Call) (entities.HostValue, error) {
	p.run(call.Self)
	return entities.Void(), nil
}

func (p *Platform) postDelayed(call Call) (entities.HostValue, error) {
	looper, ok := call.Value.(*Looper)
	if !ok {
		return entities.Bool(false), nil
	}
	task, _ := call.Args[0].Object()
	delay, _ := call.Args[1].Long()

	posted := looper.PostDelayed(func() { p.run(task) }, time.Duration(delay)*time.Millisecond)
	return entities.Bool(posted), nil
}

// run fires a runnable on the looper goroutine. One-shot runnables are
// dropped after firing; repeating ones re-post themselves.
func (p *Platform) run(task entities.ObjectRef) {
	v, ok := p.rt.Value(task)
	if !ok {
		p.logger.Debug("hostrt: stale runnable dropped", "ref", uint64(task))
		return
	}
	r, ok := v.(*runnable)
	if !ok {
		return
	}

	ctx := callctx.WithEntryPoint(context.Background(), "timer")
	if p.functions == nil {
		p.logger.WarnContext(ctx, "hostrt: timer fired without a function target", "function_id", r.fn)
	} else if err := p.functions.Invoke(ctx, r.fn); err != nil {
		p.logger.ErrorContext(ctx, "hostrt: timer callback failed",
			append(callctx.LogArgs(ctx), "function_id", r.fn, "error", err)...)
	}

	if r.repeat && p.looper != nil && p.looper.PostDelayed(func() { p.run(task) }, r.delay) {
		return
	}
	p.rt.DeleteRef(task)
}
