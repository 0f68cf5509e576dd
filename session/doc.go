// Package session keeps live engines addressable by handle.
//
// The native library hands a handle to its caller instead of a Go
// pointer; the table maps it back to the engine and disposes the engine
// when the handle is removed. Observers see every open and close.
package session
