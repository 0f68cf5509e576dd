package async

import (
	"sync/atomic"
)

// Call pairs one engine promise with the callbacks that settle it.
// Settle is applied at most once; later attempts are ignored.
type Call struct {
	resolve func(any)
	reject  func(error)
	settled atomic.Bool
}

// NewCall creates a pending call.
func NewCall(resolve func(any), reject func(error)) *Call {
	return &Call{resolve: resolve, reject: reject}
}

// Settle resolves or rejects the call from r. It reports whether this
// invocation performed the settlement.
func (c *Call) Settle(r Result) bool {
	if !c.settled.CompareAndSwap(false, true) {
		return false
	}
	if r.Err != nil {
		c.reject(r.Err)
	} else {
		c.resolve(r.Value)
	}
	return true
}

// Settled reports whether Settle has run.
func (c *Call) Settled() bool {
	return c.settled.Load()
}
