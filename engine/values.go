package engine

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/dop251/goja"
)

// errorText extracts the message a script would see for err.
func errorText(err error) string {
	var ex *goja.Exception
	if stderrors.As(err, &ex) {
		return valueText(ex.Value())
	}
	return err.Error()
}

// valueText renders a thrown or rejected value. Error objects yield
// their message.
func valueText(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return fmt.Sprint(v)
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}
	return v.String()
}

// bytesOf reads binary data out of an ArrayBuffer, a typed array, or a
// string.
func bytesOf(v goja.Value) ([]byte, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	switch x := v.Export().(type) {
	case goja.ArrayBuffer:
		return append([]byte{}, x.Bytes()...), true
	case []byte:
		return append([]byte{}, x...), true
	case string:
		return []byte(x), true
	}
	return nil, false
}

func newUint8Array(vm *goja.Runtime, b []byte) goja.Value {
	ctor := vm.Get("Uint8Array")
	arr, err := vm.New(ctor, vm.ToValue(vm.NewArrayBuffer(b)))
	if err != nil {
		panic(vm.NewGoError(err))
	}
	return arr
}

// toJS converts decoded payload values into plain script values. Maps
// become objects, slices arrays, and byte strings Uint8Array.
func toJS(vm *goja.Runtime, v any) goja.Value {
	switch x := v.(type) {
	case nil:
		return goja.Null()
	case []byte:
		return newUint8Array(vm, x)
	case map[string]any:
		obj := vm.NewObject()
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_ = obj.Set(k, toJS(vm, x[k]))
		}
		return obj
	case map[any]any:
		obj := vm.NewObject()
		for k, val := range x {
			_ = obj.Set(fmt.Sprint(k), toJS(vm, val))
		}
		return obj
	case []any:
		items := make([]any, len(x))
		for i, item := range x {
			items[i] = toJS(vm, item)
		}
		return vm.NewArray(items...)
	case uint64:
		return vm.ToValue(float64(x))
	default:
		return vm.ToValue(x)
	}
}

// exportValue converts a script value to Go for callers outside the
// loop. Typed arrays export as []byte. The result shares no memory with
// the runtime: goja exports typed arrays as slices over their buffer, so
// every slice is copied, nested ones included.
func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return detach(v.Export(), make(map[uintptr]any))
}

// detach deep-copies x. seen maps already copied containers to their
// copy so cyclic exports terminate.
func detach(x any, seen map[uintptr]any) any {
	switch t := x.(type) {
	case goja.ArrayBuffer:
		return append([]byte{}, t.Bytes()...)
	case []byte:
		return append([]byte{}, t...)
	case map[string]any:
		if t == nil {
			return t
		}
		key := reflect.ValueOf(t).Pointer()
		if c, ok := seen[key]; ok {
			return c
		}
		out := make(map[string]any, len(t))
		seen[key] = out
		for k, v := range t {
			out[k] = detach(v, seen)
		}
		return out
	case []any:
		if len(t) == 0 {
			return append([]any{}, t...)
		}
		key := reflect.ValueOf(t).Pointer()
		if c, ok := seen[key]; ok {
			return c
		}
		out := make([]any, len(t))
		seen[key] = out
		for i, v := range t {
			out[i] = detach(v, seen)
		}
		return out
	}

	// Remaining typed arrays ([]int32, []float64, ...).
	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Slice {
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	}
	return x
}
