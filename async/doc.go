// Package async runs background work for promises the engine hands out.
//
// A Pool executes Tasks off the engine goroutine and reports each outcome
// once through a callback. The engine owner forwards that outcome to its
// own goroutine and settles the matching Call there; Call guarantees that
// a promise is resolved or rejected at most once.
package async
