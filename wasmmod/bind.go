package wasmmod

import (
	"context"

	"github.com/dop251/goja"
)

// Bind returns a script object with one function per export. Functions
// take and return numbers; multiple results come back as an array.
// The object must only be used on the goroutine that owns vm.
func (m *Module) Bind(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	for _, exp := range m.exports {
		name := exp.Name
		_ = obj.Set(name, func(call goja.FunctionCall) goja.Value {
			args := make([]float64, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = a.ToFloat()
			}
			out, err := m.Call(context.Background(), name, args...)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			switch len(out) {
			case 0:
				return goja.Undefined()
			case 1:
				return vm.ToValue(out[0])
			default:
				items := make([]any, len(out))
				for i, v := range out {
					items[i] = v
				}
				return vm.NewArray(items...)
			}
		})
	}
	return obj
}
