// Package wazero exposes the bridge entry points as a wazero host module.
//
// It handles:
//
//   - Converting between the packed i64 pointer+length format and guest memory
//   - Placing host-produced strings and responses in guest memory through the
//     guest's "allocate" and "deallocate" exports
//   - Mapping error severity onto guest traps or recoverable sentinels
//   - Keeping the last request fault of each guest module for last_error
//
// # Basic Usage
//
//	rt := hostrt.New()
//	platform, _ := hostrt.InstallPlatform(rt)
//
//	b, err := bridge.New(rt, bridge.WithHolder(platform.ExecutionContext()))
//	if err != nil {
//	    return err
//	}
//
//	runtime := wazero.NewRuntime(ctx)
//	err = hbwazero.RegisterWithRuntime(ctx, runtime, b)
//
// # Guest Ownership
//
// worker_send_bytes, call_native and last_error return regions allocated by
// the guest's own allocator. The guest frees them with deallocate(ptr, size),
// where size is the packed length (plus one for the C string terminator of
// worker_send_bytes).
package wazero
