// Package entities provides the value types that cross the bridge boundary.
// Host values, script values, member descriptors, timer requests and raw
// buffers live here so that every layer shares one definition of them.
package entities
