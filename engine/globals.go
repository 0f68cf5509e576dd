package engine

import (
	"os"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/buffer"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/process"
	"github.com/dop251/goja_nodejs/require"
	"github.com/dop251/goja_nodejs/url"
	"go.uber.org/zap"

	"github.com/wippyai/js-bridge/message"
)

const bootstrap = `
globalThis.queueMicrotask = function (fn) {
	Promise.resolve().then(function () { fn(); });
};
`

// consolePrinter routes script console output to zap.
type consolePrinter struct {
	log *zap.Logger
}

func (p consolePrinter) Log(s string)   { p.log.Info(s) }
func (p consolePrinter) Warn(s string)  { p.log.Warn(s) }
func (p consolePrinter) Error(s string) { p.log.Error(s) }

// setup builds the runtime and its globals. Runs on the loop.
func (e *Engine) setup() error {
	vm := goja.New()
	e.loop.vm = vm

	reg := require.NewRegistry(require.WithLoader(func(string) ([]byte, error) {
		return nil, require.ModuleFileDoesNotExistError
	}))
	native := reg.Enable(vm)

	printer := consolePrinter{log: e.log.Named("console")}
	mod := vm.NewObject()
	_ = mod.Set("exports", vm.NewObject())
	console.RequireWithPrinter(printer)(vm, mod)
	_ = vm.Set("console", mod.Get("exports"))

	buffer.Enable(vm)
	url.Enable(vm)
	process.Enable(vm)

	e.installTimers(vm)
	e.installFetch(vm)
	e.installMessaging(vm)
	if _, err := vm.RunString(bootstrap); err != nil {
		return err
	}

	e.modules = make(map[string]*Module)
	cwd, err := os.Getwd()
	if err != nil {
		cwd = string(os.PathSeparator)
	}
	e.loader = newLoader(e, native)
	_ = vm.Set("require", e.loader.requireFrom(cwd))

	for _, hf := range e.hostFuncs {
		e.bindHostFunc(hf)
	}
	return nil
}

func (e *Engine) installTimers(vm *goja.Runtime) {
	l := e.loop
	set := func(repeat bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				panic(vm.NewTypeError("callback must be a function"))
			}
			delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
			var args []goja.Value
			if len(call.Arguments) > 2 {
				args = append(args, call.Arguments[2:]...)
			}
			return vm.ToValue(l.schedule(fn, delay, repeat, args))
		}
	}
	clearTimer := func(call goja.FunctionCall) goja.Value {
		if !goja.IsUndefined(call.Argument(0)) {
			l.clear(call.Argument(0).ToInteger())
		}
		return goja.Undefined()
	}

	_ = vm.Set("setTimeout", set(false))
	_ = vm.Set("setInterval", set(true))
	_ = vm.Set("clearTimeout", clearTimer)
	_ = vm.Set("clearInterval", clearTimer)
	_ = vm.Set("setImmediate", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("callback must be a function"))
		}
		var args []goja.Value
		if len(call.Arguments) > 1 {
			args = append(args, call.Arguments[1:]...)
		}
		return vm.ToValue(l.schedule(fn, 0, false, args))
	})
	_ = vm.Set("clearImmediate", clearTimer)
}

// installMessaging exposes the native message bridge: send_to_port,
// send_to_host, the Host object, and JsonPayload.
func (e *Engine) installMessaging(vm *goja.Runtime) {
	_ = vm.Set("send_to_port", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(e.post(message.NewString(call.Argument(0).String())))
	})

	_ = vm.Set("send_to_host", func(call goja.FunctionCall) goja.Value {
		id := int32(call.Argument(0).ToInteger())
		msg, err := message.NewStructured(id, exportValue(call.Argument(1)))
		if err != nil {
			e.log.Warn("encode structured message", zap.Int32("callback_id", id), zap.Error(err))
			return vm.ToValue(false)
		}
		return vm.ToValue(e.post(msg))
	})

	host := vm.NewObject()
	_ = host.Set("post", func(call goja.FunctionCall) goja.Value {
		id := int32(call.Argument(0).ToInteger())
		data, ok := bytesOf(call.Argument(1))
		if !ok {
			panic(vm.NewTypeError("post: data must be an ArrayBuffer, typed array, or string"))
		}
		return vm.ToValue(e.post(message.NewBinary(id, data)))
	})
	envelope := func(done bool, optional bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			id := int32(call.Argument(0).ToInteger())
			data, ok := bytesOf(call.Argument(1))
			if !ok && !optional {
				panic(vm.NewTypeError("data must be an ArrayBuffer, typed array, or string"))
			}
			return vm.ToValue(e.postEnvelope(id, message.Envelope{Data: data, Done: done}))
		}
	}
	_ = host.Set("send_value", envelope(true, false))
	_ = host.Set("stream_value", envelope(false, false))
	_ = host.Set("stream_value_end", envelope(true, true))
	_ = host.Set("send_error", func(call goja.FunctionCall) goja.Value {
		id := int32(call.Argument(0).ToInteger())
		return vm.ToValue(e.postEnvelope(id, message.Envelope{Error: valueText(call.Argument(1)), Done: true}))
	})
	_ = vm.Set(e.hostGlobal, host)

	payload := vm.NewObject()
	_ = payload.Set("encode", func(call goja.FunctionCall) goja.Value {
		if goja.IsUndefined(call.Argument(0)) {
			return goja.Undefined()
		}
		b, err := message.Encode(exportValue(call.Argument(0)))
		if err != nil {
			e.log.Debug("JsonPayload.encode failed", zap.Error(err))
			return goja.Undefined()
		}
		return newUint8Array(vm, b)
	})
	_ = payload.Set("decode", func(call goja.FunctionCall) goja.Value {
		b, ok := bytesOf(call.Argument(0))
		if !ok {
			return goja.Undefined()
		}
		v, err := message.Decode(b)
		if err != nil {
			e.log.Debug("JsonPayload.decode failed", zap.Error(err))
			return goja.Undefined()
		}
		return toJS(vm, v)
	})
	_ = vm.Set("JsonPayload", payload)
}

func (e *Engine) postEnvelope(id int32, env message.Envelope) bool {
	msg, err := message.NewEnvelope(id, env)
	if err != nil {
		e.log.Warn("encode envelope", zap.Int32("callback_id", id), zap.Error(err))
		return false
	}
	return e.post(msg)
}

// post delivers msg to the host port. A failure is logged and reported
// to the script as false.
func (e *Engine) post(msg message.Message) bool {
	ok := e.port.Post(msg)
	e.metrics.MessagePosted(msg.Kind.String(), ok)
	if !ok {
		e.log.Debug("host port rejected message",
			zap.Stringer("kind", msg.Kind), zap.Int32("callback_id", msg.CallbackID))
	}
	return ok
}
