package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/reglet-dev/hostbridge/bridge"
	hbwazero "github.com/reglet-dev/hostbridge/infrastructure/wazero"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// InvokeExport is the guest export host timers call with a function id.
const InvokeExport = "__bridge_invoke"

// ErrNoBridge is returned by NewExecutor when no bridge was configured.
var ErrNoBridge = errors.New("host: executor requires a bridge")

// Executor manages the lifecycle of WASM scripts linked against the bridge.
type Executor struct {
	runtime     wazero.Runtime
	bridge      *bridge.Bridge
	dispatcher  *Dispatcher
	logger      *slog.Logger
	stdout      io.Writer
	stderr      io.Writer
	adapterOpts []hbwazero.AdapterOption
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(ctx context.Context, opts ...Option) (*Executor, error) {
	e := &Executor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.bridge == nil {
		return nil, ErrNoBridge
	}

	rt := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	e.runtime = rt

	adapterOpts := append([]hbwazero.AdapterOption{hbwazero.WithLogger(e.logger)}, e.adapterOpts...)
	if err := hbwazero.RegisterWithRuntime(ctx, rt, e.bridge, adapterOpts...); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	return e, nil
}

// Close releases resources held by the executor, including every script.
func (e *Executor) Close(ctx context.Context) error {
	if e.dispatcher != nil {
		e.dispatcher.Bind(nil)
	}
	return e.runtime.Close(ctx)
}

// Bridge returns the bridge the executor exposes.
func (e *Executor) Bridge() *bridge.Bridge { return e.bridge }

// LoadScript instantiates a WASM module under name.
func (e *Executor) LoadScript(ctx context.Context, name string, wasmBytes []byte) (*ScriptInstance, error) {
	cfg := wazero.NewModuleConfig().WithName(name)
	if e.stdout != nil {
		cfg = cfg.WithStdout(e.stdout)
	}
	if e.stderr != nil {
		cfg = cfg.WithStderr(e.stderr)
	}

	ctx = hbwazero.WithGuestName(ctx, name)
	mod, err := e.runtime.InstantiateWithConfig(ctx, wasmBytes, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = mod.Close(ctx)
			return nil, fmt.Errorf("failed to call _initialize: %w", err)
		}
	}

	inst := &ScriptInstance{module: mod, name: name, logger: e.logger}
	if e.dispatcher != nil {
		e.dispatcher.Bind(inst)
	}
	e.logger.DebugContext(ctx, "host: script loaded", "guest", name)
	return inst, nil
}

// ScriptInstance is an instantiated script module.
type ScriptInstance struct {
	module api.Module
	name   string
	logger *slog.Logger
}

// Name returns the module name.
func (s *ScriptInstance) Name() string { return s.name }

// Call invokes an exported function of the script.
func (s *ScriptInstance) Call(ctx context.Context, export string, params ...uint64) ([]uint64, error) {
	f := s.module.ExportedFunction(export)
	if f == nil {
		return nil, fmt.Errorf("export %q not found", export)
	}
	return f.Call(hbwazero.WithGuestName(ctx, s.name), params...)
}

// Invoke calls the script function fn. It implements ports.FunctionInvoker
// and runs on the scheduler goroutine.
func (s *ScriptInstance) Invoke(ctx context.Context, fn uint64) error {
	if _, err := s.Call(ctx, InvokeExport, fn); err != nil {
		s.logger.ErrorContext(ctx, "host: script callback failed", "guest", s.name, "function", fn, "error", err)
		return fmt.Errorf("invoke function %d in %s: %w", fn, s.name, err)
	}
	return nil
}

// Close releases the module.
func (s *ScriptInstance) Close(ctx context.Context) error {
	return s.module.Close(ctx)
}
