package marshal

import (
	"github.com/dop251/goja"
)

// ToValue converts a decoded argument into an engine value. Must be
// called on the goroutine that owns vm.
func ToValue(vm *goja.Runtime, a Arg) goja.Value {
	if !a.Defined {
		return goja.Undefined()
	}
	switch v := a.Value.(type) {
	case []byte:
		return vm.ToValue(vm.NewArrayBuffer(v))
	case int32:
		return vm.ToValue(int64(v))
	default:
		return vm.ToValue(v)
	}
}

// Positional converts args in order for a direct call.
func Positional(vm *goja.Runtime, args []Arg) []goja.Value {
	out := make([]goja.Value, len(args))
	for i, a := range args {
		out[i] = ToValue(vm, a)
	}
	return out
}

// Invocation builds the module call vocabulary: the module state first,
// then the positional arguments, then the correlation id.
func Invocation(vm *goja.Runtime, state goja.Value, args []Arg, correlationID int32) []goja.Value {
	out := make([]goja.Value, 0, len(args)+2)
	if state == nil {
		state = goja.Undefined()
	}
	out = append(out, state)
	out = append(out, Positional(vm, args)...)
	return append(out, vm.ToValue(int64(correlationID)))
}
