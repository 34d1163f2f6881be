// Package ports defines the opaque collaborator interfaces of the bridge.
// The host runtime's object/method dispatch and the script engine's
// callback and memory model are only ever reached through these ports;
// adapters (the reference host runtime, the wazero guest) implement them.
package ports
