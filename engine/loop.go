package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-bridge/async"
	"github.com/wippyai/js-bridge/errors"
)

// completionBuffer bounds how many finished background results may wait
// for the loop before workers block.
const completionBuffer = 64

// loop is the single executor that owns the goja runtime. Every field
// below quit is touched only from the loop goroutine.
type loop struct {
	requests    chan func()
	completions chan func()
	quit        chan struct{}
	done        chan struct{}
	log         *zap.Logger

	vm      *goja.Runtime
	pool    *async.Pool
	pending int
	timers  map[int64]*timer
	nextID  int64
}

func newLoop(log *zap.Logger, pool *async.Pool) *loop {
	return &loop{
		requests:    make(chan func()),
		completions: make(chan func(), completionBuffer),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		log:         log,
		pool:        pool,
		timers:      make(map[int64]*timer),
	}
}

func (l *loop) start() {
	go l.run()
}

func (l *loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.requests:
			fn()
		case fn := <-l.completions:
			// Work that finished after its call returned.
			l.apply(fn)
		case <-l.quit:
			return
		}
	}
}

// do hands fn to the loop and blocks until it has run. Cancelling ctx
// abandons the wait; it does not stop fn once the loop has accepted it.
func (l *loop) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	req := func() {
		reply <- l.guard(fn)
	}

	select {
	case l.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return errors.Disposed()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return errors.Disposed()
	}
}

func (l *loop) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("panic on engine loop", zap.Any("panic", r))
			err = errors.Execution(errors.PhaseRuntime, nil, fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return fn()
}

func (l *loop) apply(fn func()) {
	if err := l.guard(func() error { fn(); return nil }); err != nil {
		l.log.Warn("completion failed", zap.Error(err))
	}
}

// drain runs completions until no background work or timer is pending.
// Must be called on the loop goroutine.
func (l *loop) drain(ctx context.Context) error {
	for l.pending > 0 {
		select {
		case fn := <-l.completions:
			l.apply(fn)
		case <-ctx.Done():
			return ctx.Err()
		case <-l.quit:
			return errors.Disposed()
		}
	}
	return nil
}

// post delivers fn to the loop from any goroutine. It reports false
// once the loop has stopped.
func (l *loop) post(fn func()) bool {
	select {
	case l.completions <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// stop ends the loop and waits for it. The vm is interrupted first so a
// running script cannot hold the loop.
func (l *loop) stop() {
	select {
	case <-l.quit:
		<-l.done
		return
	default:
	}
	if l.vm != nil {
		l.vm.Interrupt("engine disposed")
	}
	close(l.quit)
	<-l.done
	for id, t := range l.timers {
		t.t.Stop()
		delete(l.timers, id)
	}
	l.pending = 0
}

// spawn runs task on the pool and returns a promise settled on the loop
// with convert's result. Must be called on the loop goroutine.
func (l *loop) spawn(task async.Task, convert func(v any) (goja.Value, error)) goja.Value {
	vm := l.vm
	promise, resolve, reject := vm.NewPromise()
	call := async.NewCall(
		func(v any) { resolve(v) },
		func(err error) { reject(vm.NewGoError(err)) },
	)

	l.pending++
	err := l.pool.Submit(task, func(r async.Result) {
		l.post(func() {
			l.pending--
			if r.Err == nil && convert != nil {
				v, cerr := convert(r.Value)
				r = async.Result{Value: v, Err: cerr}
			}
			call.Settle(r)
		})
	})
	if err != nil {
		l.pending--
		call.Settle(async.Result{Err: err})
	}
	return vm.ToValue(promise)
}

type timer struct {
	t        *time.Timer
	fn       goja.Callable
	args     []goja.Value
	interval time.Duration
	repeat   bool
}

func (l *loop) schedule(fn goja.Callable, delay time.Duration, repeat bool, args []goja.Value) int64 {
	if delay < 0 {
		delay = 0
	}
	if repeat && delay < time.Millisecond {
		delay = time.Millisecond
	}
	l.nextID++
	id := l.nextID
	t := &timer{fn: fn, args: args, interval: delay, repeat: repeat}
	l.timers[id] = t
	l.pending++
	t.t = time.AfterFunc(delay, func() {
		l.post(func() { l.fire(id) })
	})
	return id
}

func (l *loop) fire(id int64) {
	t, ok := l.timers[id]
	if !ok {
		return
	}
	if !t.repeat {
		delete(l.timers, id)
		l.pending--
	}
	if _, err := t.fn(goja.Undefined(), t.args...); err != nil {
		l.log.Warn("timer callback failed", zap.Int64("timer", id), zap.String("error", errorText(err)))
	}
	if t.repeat {
		if _, still := l.timers[id]; still {
			t.t.Reset(t.interval)
		}
	}
}

func (l *loop) clear(id int64) {
	t, ok := l.timers[id]
	if !ok {
		return
	}
	t.t.Stop()
	delete(l.timers, id)
	l.pending--
}
