// Package host provides the runtime environment for executing bridge-linked WASM scripts.
//
// It abstracts the underlying WASM engine (wazero), manages script lifecycle,
// and registers the bridge host module so scripts can import its entry points.
// A Dispatcher lets the host platform call back into whichever script is
// currently loaded when a timer fires.
package host
