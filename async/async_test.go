package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_Submit(t *testing.T) {
	p := NewPool(2, Hooks{})
	defer p.Close()

	results := make(chan Result, 2)
	if err := p.Submit(func(context.Context) (any, error) { return 42, nil }, func(r Result) { results <- r }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.Submit(func(context.Context) (any, error) { return nil, errors.New("boom") }, func(r Result) { results <- r }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var ok, failed int
	for range 2 {
		select {
		case r := <-results:
			if r.Err != nil {
				if r.Err.Error() != "boom" {
					t.Errorf("err = %v", r.Err)
				}
				failed++
			} else {
				if r.Value != 42 {
					t.Errorf("value = %v", r.Value)
				}
				ok++
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for results")
		}
	}
	if ok != 1 || failed != 1 {
		t.Errorf("ok=%d failed=%d", ok, failed)
	}
}

func TestPool_Bounded(t *testing.T) {
	const workers = 3
	p := NewPool(workers, Hooks{})
	defer p.Close()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		err := p.Submit(func(context.Context) (any, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		}, func(Result) { wg.Done() })
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()
	if peak.Load() > workers {
		t.Errorf("peak concurrency %d exceeds %d", peak.Load(), workers)
	}
}

func TestPool_PanicBecomesError(t *testing.T) {
	p := NewPool(1, Hooks{})
	defer p.Close()

	done := make(chan Result, 1)
	_ = p.Submit(func(context.Context) (any, error) { panic("bad") }, func(r Result) { done <- r })
	r := <-done
	if r.Err == nil {
		t.Fatal("expected error from panicking task")
	}
}

func TestPool_Hooks(t *testing.T) {
	var started, finished atomic.Int32
	p := NewPool(1, Hooks{
		Started:  func() { started.Add(1) },
		Finished: func(error) { finished.Add(1) },
	})
	done := make(chan struct{})
	_ = p.Submit(func(context.Context) (any, error) { return nil, nil }, func(Result) { close(done) })
	<-done
	p.Close()
	if started.Load() != 1 || finished.Load() != 1 {
		t.Errorf("started=%d finished=%d", started.Load(), finished.Load())
	}
}

func TestPool_CloseCancelsAndRejectsSubmit(t *testing.T) {
	p := NewPool(1, Hooks{})
	done := make(chan Result, 1)
	_ = p.Submit(func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, func(r Result) { done <- r })

	p.Close()
	if r := <-done; !errors.Is(r.Err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", r.Err)
	}
	if p.Inflight() != 0 {
		t.Errorf("inflight = %d", p.Inflight())
	}
	if err := p.Submit(func(context.Context) (any, error) { return nil, nil }, func(Result) {}); err == nil {
		t.Error("Submit after Close should fail")
	}
	p.Close()
}

func TestCall_SettlesOnce(t *testing.T) {
	var resolved, rejected atomic.Int32
	c := NewCall(func(any) { resolved.Add(1) }, func(error) { rejected.Add(1) })

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := Result{Value: i}
			if i%2 == 1 {
				r = Result{Err: errors.New("x")}
			}
			if c.Settle(r) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("settle won %d times", wins.Load())
	}
	if resolved.Load()+rejected.Load() != 1 {
		t.Errorf("resolved=%d rejected=%d", resolved.Load(), rejected.Load())
	}
	if !c.Settled() {
		t.Error("Settled should be true")
	}
}
