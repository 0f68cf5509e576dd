package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/js-bridge/errors"
	"github.com/wippyai/js-bridge/marshal"
	"github.com/wippyai/js-bridge/message"
)

var currentAPI = APIVersion{Major: APIMajor, Minor: APIMinor}

func newEngine(t *testing.T, port message.Port, opts ...Option) *Engine {
	t.Helper()
	e := New(opts...)
	if err := e.Init(context.Background(), HostAPI{Version: currentAPI, Port: port}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = e.Dispose() })
	return e
}

func mustRegister(t *testing.T, e *Engine, name, source string, args ...marshal.Arg) {
	t.Helper()
	if err := e.Register(context.Background(), name, source, args); err != nil {
		t.Fatalf("Register %s: %v", name, err)
	}
}

func mustInvoke(t *testing.T, e *Engine, module, fn string, args ...marshal.Arg) any {
	t.Helper()
	v, err := e.Invoke(context.Background(), module, fn, 0, args)
	if err != nil {
		t.Fatalf("Invoke %s.%s: %v", module, fn, err)
	}
	return v
}

const counterModule = `
export default {
	init(prefix) {
		return { prefix, count: 0 };
	},
	functions: {
		greet(state, name, id) {
			state.count++;
			return state.prefix + " " + name + " #" + id + " (" + state.count + ")";
		},
		count(state) {
			return state.count;
		},
		version: "1.0",
	},
};
`

func TestInit_Handshake(t *testing.T) {
	tests := []struct {
		name    string
		version APIVersion
		wantErr bool
	}{
		{"current", currentAPI, false},
		{"newer minor", APIVersion{Major: APIMajor, Minor: APIMinor + 3}, false},
		{"older major", APIVersion{Major: APIMajor - 1, Minor: APIMinor}, true},
		{"newer major", APIVersion{Major: APIMajor + 1, Minor: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New()
			defer e.Dispose()
			err := e.Init(context.Background(), HostAPI{Version: tt.version})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Init err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.IsKind(err, errors.KindVersionMismatch) {
					t.Errorf("kind = %q", errors.KindOf(err))
				}
				if e.State() != StateUninitialized {
					t.Errorf("state = %v after failed handshake", e.State())
				}
			}
		})
	}
}

func TestInit_Twice(t *testing.T) {
	e := newEngine(t, nil)
	err := e.Init(context.Background(), HostAPI{Version: currentAPI})
	if !errors.IsKind(err, errors.KindAlreadyInitialized) {
		t.Fatalf("second Init err = %v", err)
	}
}

func TestLifecycle_BeforeInitAndAfterDispose(t *testing.T) {
	ctx := context.Background()
	e := New()

	if _, err := e.Invoke(ctx, "sdk", "f", 0, nil); !errors.IsKind(err, errors.KindNotInitialized) {
		t.Errorf("invoke before init: %v", err)
	}
	if e.IsRegistered(ctx, "sdk") {
		t.Error("IsRegistered before init should be false")
	}

	if err := e.Init(ctx, HostAPI{Version: currentAPI}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	mustRegister(t, e, "sdk", counterModule, marshal.String("hi"))

	if err := e.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if err := e.Dispose(); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}
	if e.State() != StateDisposed {
		t.Errorf("state = %v", e.State())
	}

	if _, err := e.Invoke(ctx, "sdk", "greet", 0, nil); !errors.IsKind(err, errors.KindDisposed) {
		t.Errorf("invoke after dispose: %v", err)
	}
	if err := e.Register(ctx, "x", counterModule, nil); !errors.IsKind(err, errors.KindDisposed) {
		t.Errorf("register after dispose: %v", err)
	}
	if e.IsRegistered(ctx, "sdk") {
		t.Error("IsRegistered after dispose should be false")
	}
	if err := e.Init(ctx, HostAPI{Version: currentAPI}); !errors.IsKind(err, errors.KindDisposed) {
		t.Errorf("init after dispose: %v", err)
	}
}

func TestDispose_Uninitialized(t *testing.T) {
	e := New()
	if err := e.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if err := e.Dispose(); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}
}

func TestDispose_InterruptsRunningScript(t *testing.T) {
	e := New()
	if err := e.Init(context.Background(), HostAPI{Version: currentAPI}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	mustRegister(t, e, "spin", `export default { init() {}, functions: { forever() { for (;;) {} } } }`)

	errc := make(chan error, 1)
	go func() {
		_, err := e.Invoke(context.Background(), "spin", "forever", 0, nil)
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = e.Dispose()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Dispose blocked on a running script")
	}
	if err := <-errc; err == nil {
		t.Error("interrupted invoke should fail")
	}
}

func TestInvoke_Concurrent(t *testing.T) {
	e := newEngine(t, nil)
	mustRegister(t, e, "sdk", counterModule, marshal.String("hi"))

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Invoke(context.Background(), "sdk", "greet", int32(i), []marshal.Arg{marshal.String("x")}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent invoke: %v", err)
	}

	if got := mustInvoke(t, e, "sdk", "count"); got != int64(n) {
		t.Errorf("count = %v, want %d", got, n)
	}
}

func TestInvokeRaw(t *testing.T) {
	e := newEngine(t, nil)
	mustRegister(t, e, "echo", `
export default {
	init() { return {}; },
	functions: {
		describe(state, a, b, c, id) {
			return [typeof a, typeof b, typeof c, id].join(",");
		},
	},
}`)

	text := []byte("42\x00\x00")
	s := []byte("ok\x00")
	raws := []marshal.Raw{
		// Text bytes read as a 4-byte integer.
		{Tag: marshal.TagInteger, Ptr: unsafe.Pointer(&text[0])},
		{Tag: marshal.TagString},
		{Tag: marshal.TagString, Ptr: unsafe.Pointer(&s[0])},
	}
	v, err := e.InvokeRaw(context.Background(), "echo", "describe", 9, raws)
	if err != nil {
		t.Fatalf("InvokeRaw: %v", err)
	}
	if v != "number,undefined,string,9" {
		t.Errorf("describe = %v", v)
	}
}

func TestInvokeRaw_StrictPolicy(t *testing.T) {
	e := newEngine(t, nil, WithArgumentPolicy(marshal.Strict))
	mustRegister(t, e, "sdk", counterModule, marshal.String("hi"))

	_, err := e.InvokeRaw(context.Background(), "sdk", "greet", 1, []marshal.Raw{{Tag: marshal.TagString}})
	if !errors.IsKind(err, errors.KindArgumentDecode) {
		t.Fatalf("err = %v, want argument_decode", err)
	}
}

func TestConsoleLogsToZap(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	e := newEngine(t, nil, WithLogger(zap.New(core)))

	if _, err := e.Eval(context.Background(), `console.log("hello", 1); console.warn("careful")`); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if logs.FilterMessage("hello 1").Len() != 1 {
		t.Errorf("console.log not captured: %v", logs.All())
	}
	warn := logs.FilterMessage("careful").All()
	if len(warn) != 1 || warn[0].Level != zap.WarnLevel {
		t.Errorf("console.warn not captured at warn level: %v", warn)
	}
}

func TestBuiltinGlobals(t *testing.T) {
	e := newEngine(t, nil)
	v, err := e.Eval(context.Background(), `[typeof Buffer, typeof URL, typeof process.env, typeof require("node:util").format, Buffer.from("hi").toString("hex")].join(",")`)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != "function,function,object,function,6869" {
		t.Errorf("globals = %v", v)
	}
}

func TestEval_Exception(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.Eval(context.Background(), `throw new Error("eval broke")`)
	if !errors.IsKind(err, errors.KindExecution) || !strings.Contains(err.Error(), "eval broke") {
		t.Fatalf("err = %v", err)
	}
}

func TestSessionIDs(t *testing.T) {
	a, b := New(), New()
	if a.ID() == b.ID() {
		t.Error("engines should get distinct session ids")
	}
}
