package engine

import (
	"context"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-bridge/async"
	"github.com/wippyai/js-bridge/errors"
)

// HostFunc is a synchronous Go function exposed to scripts. It runs on
// the loop and receives exported argument values.
type HostFunc func(args []any) (any, error)

type hostFunc struct {
	sync  HostFunc
	task  func(args []any) async.Task
	name  string
	async bool
}

// RegisterHostFunc exposes fn as the global name. Thrown errors surface
// in script as exceptions.
func (e *Engine) RegisterHostFunc(ctx context.Context, name string, fn HostFunc) error {
	return e.addHostFunc(ctx, hostFunc{name: name, sync: fn})
}

// RegisterAsyncHostFunc exposes a global name that returns a promise.
// newTask builds the background task from the call arguments; its
// result resolves the promise and its error rejects it.
func (e *Engine) RegisterAsyncHostFunc(ctx context.Context, name string, newTask func(args []any) async.Task) error {
	return e.addHostFunc(ctx, hostFunc{name: name, task: newTask, async: true})
}

func (e *Engine) addHostFunc(ctx context.Context, hf hostFunc) error {
	if hf.name == "" {
		return errors.InvalidInput(errors.PhaseRegister, "host function name cannot be empty")
	}
	if hf.sync == nil && hf.task == nil {
		return errors.InvalidInput(errors.PhaseRegister, "host function "+hf.name+" has no handler")
	}

	e.mu.Lock()
	state := e.State()
	if state == StateUninitialized {
		e.hostFuncs = append(e.hostFuncs, hf)
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	return e.run(ctx, errors.PhaseRegister, func() error {
		e.hostFuncs = append(e.hostFuncs, hf)
		e.bindHostFunc(hf)
		return nil
	})
}

// bindHostFunc installs hf on the runtime. Runs on the loop.
func (e *Engine) bindHostFunc(hf hostFunc) {
	vm := e.loop.vm
	_ = vm.Set(hf.name, func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = exportValue(a)
		}

		if hf.async {
			return e.loop.spawn(hf.task(args), func(v any) (goja.Value, error) {
				return toJS(vm, v), nil
			})
		}

		v, err := hf.sync(args)
		if err != nil {
			e.log.Debug("host function failed", zap.String("name", hf.name), zap.Error(err))
			panic(vm.NewGoError(err))
		}
		return toJS(vm, v)
	})
}
