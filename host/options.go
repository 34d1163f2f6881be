package host

import (
	"io"
	"log/slog"

	"github.com/reglet-dev/hostbridge/bridge"
	hbwazero "github.com/reglet-dev/hostbridge/infrastructure/wazero"
)

// Option defines a functional option for configuring the Executor.
type Option func(*Executor)

// WithBridge sets the bridge whose entry points are exposed to scripts.
func WithBridge(b *bridge.Bridge) Option {
	return func(e *Executor) {
		e.bridge = b
	}
}

// WithDispatcher binds every loaded script to d, so host timers fire into
// the most recently loaded script.
func WithDispatcher(d *Dispatcher) Option {
	return func(e *Executor) {
		e.dispatcher = d
	}
}

// WithAdapterOptions passes options to the bridge host module.
func WithAdapterOptions(opts ...hbwazero.AdapterOption) Option {
	return func(e *Executor) {
		e.adapterOpts = append(e.adapterOpts, opts...)
	}
}

// WithLogger sets the executor logger. It is also handed to the host module.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithStdout sets the WASI stdout of loaded scripts.
func WithStdout(w io.Writer) Option {
	return func(e *Executor) {
		e.stdout = w
	}
}

// WithStderr sets the WASI stderr of loaded scripts.
func WithStderr(w io.Writer) Option {
	return func(e *Executor) {
		e.stderr = w
	}
}
