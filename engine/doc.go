// Package engine hosts a goja script runtime behind a native-friendly API.
//
// An Engine goes through three states: uninitialized, initialized and
// disposed. Init performs the host handshake, builds the runtime with its
// globals (console, Buffer, URL, process, timers, fetch, the message
// bridge) and starts the loop goroutine that owns it. Every later call
// is served on that loop, so scripts never run concurrently with each
// other.
//
// Modules are registered by name from inline source or a file. The
// default export must look like
//
//	export default {
//		init(...args) { return state; },
//		functions: {
//			fn(state, ...args, correlationId) { ... },
//		},
//	};
//
// and init's result, awaited when it is a promise, is kept as the state
// passed to every function. Invoke drains timers and background tasks
// before it reads a promise result, so async functions return their
// settled value.
//
// Background work started from script (fetch and async host functions)
// runs on a bounded worker pool. Results are posted back to the loop and
// settle their promise there exactly once.
package engine
