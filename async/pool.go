package async

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/wippyai/js-bridge/errors"
)

// DefaultWorkers is the worker bound used when none is configured.
const DefaultWorkers = 8

// Task is background work. It must not touch engine state.
type Task func(ctx context.Context) (any, error)

// Result is the single outcome of a Task.
type Result struct {
	Value any
	Err   error
}

// Hooks observe task lifecycle. Either field may be nil.
type Hooks struct {
	Started  func()
	Finished func(err error)
}

// Pool runs tasks on background goroutines, at most workers at a time.
type Pool struct {
	ctx      context.Context
	cancel   context.CancelFunc
	sem      *semaphore.Weighted
	hooks    Hooks
	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight atomic.Int64
	closed   bool
}

// NewPool creates a pool bounded to workers concurrent tasks.
func NewPool(workers int, hooks Hooks) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		ctx:    ctx,
		cancel: cancel,
		sem:    semaphore.NewWeighted(int64(workers)),
		hooks:  hooks,
	}
}

// Submit schedules task and returns immediately. done is called exactly
// once from the worker goroutine with the task's outcome, including when
// the pool is closed before the task could start.
func (p *Pool) Submit(task Task, done func(Result)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New(errors.PhaseAsync, errors.KindDisposed).
			Detail("worker pool closed").
			Build()
	}
	p.wg.Add(1)
	p.inflight.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.inflight.Add(-1)

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			done(Result{Err: err})
			return
		}
		defer p.sem.Release(1)

		if p.hooks.Started != nil {
			p.hooks.Started()
		}
		r := run(p.ctx, task)
		if p.hooks.Finished != nil {
			p.hooks.Finished(r.Err)
		}
		done(r)
	}()
	return nil
}

func run(ctx context.Context, task Task) (r Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r = Result{Err: fmt.Errorf("task panicked: %v", rec)}
		}
	}()
	v, err := task(ctx)
	return Result{Value: v, Err: err}
}

// Inflight returns the number of submitted tasks that have not finished.
func (p *Pool) Inflight() int64 {
	return p.inflight.Load()
}

// Close cancels the pool context and waits for every task to return.
// Tasks should honor ctx to make Close prompt.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
