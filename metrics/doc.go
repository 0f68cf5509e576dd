// Package metrics exposes Prometheus collectors for module registration,
// invocation, background tasks, and host message posts.
package metrics
