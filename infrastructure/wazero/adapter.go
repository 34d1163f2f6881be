package wazero

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/hostbridge/bridge"
	"github.com/reglet-dev/hostbridge/callback"
	"github.com/reglet-dev/hostbridge/domain/entities"
	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
	"github.com/reglet-dev/hostbridge/internal/abi"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// DefaultModuleName is the import module guests link against.
const DefaultModuleName = "bridge_host"

// DefaultMaxRequestSize limits names and argument payloads read from guest
// memory by call_native.
const DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

// Exported host function names.
const (
	FuncGetPlatformVersion   = "get_platform_version"
	FuncCreateTimeoutHandler = "create_timeout_handler"
	FuncPostDelayed          = "post_delayed"
	FuncWorkerSendBytes      = "worker_send_bytes"
	FuncCallNative           = "call_native"
	FuncLastError            = "last_error"
)

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	// ModuleName is the host module name (default: "bridge_host").
	ModuleName string

	// MaxRequestSize limits the size of incoming requests from guest memory.
	// Default is 1MB.
	MaxRequestSize uint32

	// Logger receives adapter diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name (default: "bridge_host").
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithMaxRequestSize sets the maximum request size from guest memory.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		c.MaxRequestSize = size
	}
}

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(c *AdapterConfig) {
		c.Logger = l
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName:     DefaultModuleName,
		MaxRequestSize: DefaultMaxRequestSize,
		Logger:         slog.Default(),
	}
}

// hostModule implements the exported functions over one Bridge.
type hostModule struct {
	bridge *bridge.Bridge
	cfg    AdapterConfig
	errs   *lastErrors
}

func newHostModule(b *bridge.Bridge, opts ...AdapterOption) *hostModule {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &hostModule{bridge: b, cfg: cfg, errs: newLastErrors()}
}

// RegisterWithRuntime instantiates the bridge host module in runtime.
//
// Every function follows the same failure rule: request errors are recorded
// for last_error and reported through the function's sentinel result, while
// environment and fatal errors panic so that wazero traps the guest call.
//
//	get_platform_version() i32                  -1 on request fault
//	create_timeout_handler() i64                 0 on request fault
//	post_delayed(h, fn, delay i64, flag i32) i32 0 or a numeric error code
//	worker_send_bytes(packed, notify i64) i64    guest-owned C string, 0 on fault
//	call_native(name, args i64) i64              JSON ScriptValue or ErrorResponse
//	last_error() i64                             JSON ErrorResponse, 0 if none
//
// Example:
//
//	b, _ := bridge.New(rt)
//	err := wazero.RegisterWithRuntime(ctx, runtime, b,
//	    wazero.WithModuleName("bridge_host"),
//	)
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, b *bridge.Bridge, opts ...AdapterOption) error {
	h := newHostModule(b, opts...)

	i32, i64 := api.ValueTypeI32, api.ValueTypeI64
	fns := []struct {
		name    string
		fn      api.GoModuleFunc
		params  []api.ValueType
		results []api.ValueType
	}{
		{FuncGetPlatformVersion, h.getPlatformVersion, nil, []api.ValueType{i32}},
		{FuncCreateTimeoutHandler, h.createTimeoutHandler, nil, []api.ValueType{i64}},
		{FuncPostDelayed, h.postDelayed, []api.ValueType{i64, i64, i64, i32}, []api.ValueType{i32}},
		{FuncWorkerSendBytes, h.workerSendBytes, []api.ValueType{i64, i64}, []api.ValueType{i64}},
		{FuncCallNative, h.callNative, []api.ValueType{i64, i64}, []api.ValueType{i64}},
		{FuncLastError, h.lastError, nil, []api.ValueType{i64}},
	}

	builder := runtime.NewHostModuleBuilder(h.cfg.ModuleName)
	for _, f := range fns {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.params, f.results).
			Export(f.name)
	}

	_, err := builder.Instantiate(ctx)
	return err
}

func (h *hostModule) getPlatformVersion(ctx context.Context, mod api.Module, stack []uint64) {
	v, err := h.bridge.GetPlatformVersion(ctx)
	if err != nil {
		h.fault(ctx, mod, FuncGetPlatformVersion, err)
		stack[0] = api.EncodeI32(-1)
		return
	}
	h.errs.clear(mod)
	stack[0] = api.EncodeI32(v)
}

func (h *hostModule) createTimeoutHandler(ctx context.Context, mod api.Module, stack []uint64) {
	handle, err := h.bridge.CreateTimeoutHandler(ctx)
	if err != nil {
		h.fault(ctx, mod, FuncCreateTimeoutHandler, err)
		stack[0] = 0
		return
	}
	h.errs.clear(mod)
	stack[0] = uint64(handle)
}

func (h *hostModule) postDelayed(ctx context.Context, mod api.Module, stack []uint64) {
	handle := entities.SchedulerHandle(stack[0])
	fn := stack[1]
	delayMs := int64(stack[2]) //nolint:gosec // G115: i64 parameter reinterpreted as signed
	flag := api.DecodeI32(stack[3])

	if err := h.bridge.PostDelayed(ctx, handle, fn, delayMs, flag); err != nil {
		h.fault(ctx, mod, FuncPostDelayed, err)
		stack[0] = api.EncodeI32(int32(callback.StatusCode(err))) //nolint:gosec // G115: codes are small
		return
	}
	h.errs.clear(mod)
	stack[0] = api.EncodeI32(0)
}

func (h *hostModule) workerSendBytes(ctx context.Context, mod api.Module, stack []uint64) {
	raw := entities.RawBufferFromPacked(stack[0])
	notify := stack[1]

	ns, err := h.bridge.WorkerSendBytes(ctx, mod.Memory(), raw, newGuestAllocator(ctx, mod), notify)
	if err != nil {
		h.fault(ctx, mod, FuncWorkerSendBytes, err)
		stack[0] = 0
		return
	}

	packed, err := ns.Transfer()
	if err != nil {
		h.fault(ctx, mod, FuncWorkerSendBytes, err)
		stack[0] = 0
		return
	}
	h.errs.clear(mod)
	stack[0] = packed
}

func (h *hostModule) callNative(ctx context.Context, mod api.Module, stack []uint64) {
	name, args, err := h.readCall(mod, stack[0], stack[1])
	if err != nil {
		h.fault(ctx, mod, FuncCallNative, err)
		stack[0] = h.writeResponse(ctx, mod, callback.FromError(err).ToJSON())
		return
	}

	v, err := h.bridge.Call(ctx, name, args...)
	if err != nil {
		h.fault(ctx, mod, FuncCallNative, err)
		stack[0] = h.writeResponse(ctx, mod, callback.FromError(err).ToJSON())
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		err = &domainerrors.InvalidRequestError{Field: "result", Reason: fmt.Sprintf("%s result is not serializable: %v", name, err)}
		h.fault(ctx, mod, FuncCallNative, err)
		stack[0] = h.writeResponse(ctx, mod, callback.FromError(err).ToJSON())
		return
	}
	h.errs.clear(mod)
	stack[0] = h.writeResponse(ctx, mod, data)
}

func (h *hostModule) lastError(ctx context.Context, mod api.Module, stack []uint64) {
	resp, ok := h.errs.take(mod)
	if !ok {
		stack[0] = 0
		return
	}
	stack[0] = h.writeResponse(ctx, mod, resp.ToJSON())
}

// readCall decodes the function name and the JSON argument array of a
// call_native request.
func (h *hostModule) readCall(mod api.Module, namePacked, argsPacked uint64) (string, []entities.ScriptValue, error) {
	nameBytes, err := h.readRequest(mod, "name", namePacked)
	if err != nil {
		return "", nil, err
	}
	if len(nameBytes) == 0 {
		return "", nil, &domainerrors.InvalidRequestError{Field: "name", Reason: "empty function name"}
	}

	argBytes, err := h.readRequest(mod, "args", argsPacked)
	if err != nil {
		return "", nil, err
	}
	var args []entities.ScriptValue
	if len(argBytes) > 0 {
		if err := json.Unmarshal(argBytes, &args); err != nil {
			return "", nil, &domainerrors.DecodeError{Format: "json", Err: err}
		}
	}
	return string(nameBytes), args, nil
}

// readRequest copies a packed region out of guest memory.
func (h *hostModule) readRequest(mod api.Module, field string, packed uint64) ([]byte, error) {
	if !abi.ValidPacked(packed) {
		return nil, &domainerrors.InvalidRequestError{Field: field, Reason: "null pointer with non-zero length"}
	}
	ptr, length := abi.UnpackPtrLen(packed)
	if length == 0 {
		return nil, nil
	}
	if length > h.cfg.MaxRequestSize {
		return nil, &domainerrors.InvalidRequestError{
			Field:  field,
			Reason: fmt.Sprintf("request size %d exceeds maximum %d bytes", length, h.cfg.MaxRequestSize),
		}
	}

	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, &domainerrors.InvalidRequestError{
			Field:  field,
			Reason: fmt.Sprintf("range 0x%x+%d is outside guest memory", ptr, length),
		}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// writeResponse allocates memory in the guest and writes data there.
// The guest owns the returned region.
func (h *hostModule) writeResponse(ctx context.Context, mod api.Module, data []byte) uint64 {
	if len(data) == 0 {
		return 0
	}

	alloc := newGuestAllocator(ctx, mod)
	ptr, err := alloc.Allocate(uint32(len(data))) //nolint:gosec // G115: responses are bounded
	if err != nil {
		h.cfg.Logger.ErrorContext(ctx, "wazero: failed to allocate response", "guest", GetGuestName(ctx, mod), "error", err)
		panic(err)
	}
	if !alloc.Write(ptr, data) {
		h.cfg.Logger.ErrorContext(ctx, "wazero: failed to write response to guest memory", "guest", GetGuestName(ctx, mod))
		panic(fmt.Errorf("wazero: write of %d bytes at 0x%x failed", len(data), ptr))
	}
	return abi.PackPtrLen(ptr, uint32(len(data))) //nolint:gosec // G115: see above
}

// fault records a request error for last_error, or panics on environment
// and fatal errors so the guest call traps.
func (h *hostModule) fault(ctx context.Context, mod api.Module, name string, err error) {
	guest := GetGuestName(ctx, mod)
	if !domainerrors.IsRecoverable(err) {
		h.cfg.Logger.ErrorContext(ctx, "wazero: trapping guest", "guest", guest, "function", name, "error", err)
		panic(fmt.Errorf("%s: %w", name, err))
	}
	h.cfg.Logger.DebugContext(ctx, "wazero: request fault", "guest", guest, "function", name, "code", domainerrors.CodeOf(err))
	h.errs.set(mod, callback.FromError(err))
}
