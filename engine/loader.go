package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/wippyai/js-bridge/errors"
	"github.com/wippyai/js-bridge/resolver"
)

// builtins are served by goja_nodejs rather than the filesystem.
var builtins = map[string]bool{
	"console": true,
	"buffer":  true,
	"url":     true,
	"util":    true,
	"process": true,
}

// fileProbes are tried when a file specifier names no existing file.
var fileProbes = []string{".mjs", ".js", ".ts", ".json"}

const wrapperHead = "(function (exports, require, module, __filename, __dirname) {"
const wrapperTail = "\n})"

// loader evaluates script, JSON, and wasm modules for one engine and
// caches them by absolute path. Used only on the loop.
type loader struct {
	e      *Engine
	native *require.RequireModule
	cache  map[string]*goja.Object
}

func newLoader(e *Engine, native *require.RequireModule) *loader {
	return &loader{e: e, native: native, cache: make(map[string]*goja.Object)}
}

func (l *loader) vm() *goja.Runtime {
	return l.e.loop.vm
}

// reset drops cached modules so the next require re-evaluates them.
func (l *loader) reset() {
	l.cache = make(map[string]*goja.Object)
}

// requireFrom returns a require function resolving relative to dir.
func (l *loader) requireFrom(dir string) func(goja.FunctionCall) goja.Value {
	referrer := filepath.Join(dir, "<require>")
	return func(call goja.FunctionCall) goja.Value {
		vm := l.vm()
		spec := call.Argument(0).String()
		requested := resolver.TypeUnspecified
		if opts, ok := call.Argument(1).(*goja.Object); ok {
			if t := opts.Get("type"); t != nil && !goja.IsUndefined(t) {
				requested = resolver.ParseType(t.String())
			}
		}

		v, err := l.require(spec, referrer, requested)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return v
	}
}

func (l *loader) require(spec, referrer string, requested resolver.ModuleType) (goja.Value, error) {
	if name, ok := builtinName(spec); ok {
		if name == "console" {
			return l.vm().Get("console"), nil
		}
		return l.native.Require(name)
	}

	path, err := l.e.res.Resolve(spec, referrer)
	if err != nil {
		return nil, err
	}
	path = probeFile(path)

	mod, err := l.load(path, requested)
	if err != nil {
		return nil, err
	}
	return mod.Get("exports"), nil
}

func builtinName(spec string) (string, bool) {
	name := strings.TrimPrefix(spec, "node:")
	return name, builtins[name]
}

func probeFile(path string) string {
	if isRegularFile(path) {
		return path
	}
	for _, ext := range fileProbes {
		if isRegularFile(path + ext) {
			return path + ext
		}
	}
	return path
}

// load returns the module object for path, evaluating it on first use.
func (l *loader) load(path string, requested resolver.ModuleType) (*goja.Object, error) {
	kind, err := resolver.CheckType(path, requested)
	if err != nil {
		return nil, err
	}
	if mod, ok := l.cache[path]; ok {
		return mod, nil
	}

	var mod *goja.Object
	switch kind {
	case resolver.TypeJSON:
		mod, err = l.loadJSON(path)
	case resolver.TypeWasm:
		mod, err = l.loadWasm(path)
	default:
		var src []byte
		if src, err = os.ReadFile(path); err != nil {
			return nil, errors.LoadFailed(path, err)
		}
		mod, err = l.evalScript(path, string(src), true)
	}
	if err != nil {
		return nil, err
	}
	return mod, nil
}

// evalScript evaluates source as a CommonJS module and returns its
// module object. When cache is set the module is visible to require
// before evaluation finishes, which allows circular imports.
func (l *loader) evalScript(path, source string, cache bool) (*goja.Object, error) {
	vm := l.vm()

	code := source
	if l.e.transpile {
		var err error
		if code, err = transpile(path, source); err != nil {
			return nil, err
		}
	}

	prog, err := goja.Compile(path, wrapperHead+code+wrapperTail, false)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailed).
			Path(path).
			Detail("compile: %s", errorText(err)).
			Cause(err).
			Build()
	}

	fnVal, err := vm.RunProgram(prog)
	if err != nil {
		return nil, errors.Execution(errors.PhaseLoad, []string{path}, errorText(err), err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailed).Path(path).Detail("module wrapper is not callable").Build()
	}

	exports := vm.NewObject()
	mod := vm.NewObject()
	_ = mod.Set("exports", exports)
	_ = mod.Set("id", path)
	_ = mod.Set("filename", path)
	if cache {
		l.cache[path] = mod
	}

	dir := filepath.Dir(path)
	_, err = fn(exports, exports, vm.ToValue(l.requireFrom(dir)), mod, vm.ToValue(path), vm.ToValue(dir))
	if err != nil {
		delete(l.cache, path)
		return nil, errors.Execution(errors.PhaseLoad, []string{path}, errorText(err), err)
	}
	Logger().Debug("module evaluated", zap.String("path", path))
	return mod, nil
}

func (l *loader) loadJSON(path string) (*goja.Object, error) {
	vm := l.vm()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.LoadFailed(path, err)
	}
	parse, _ := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	v, err := parse(goja.Undefined(), vm.ToValue(string(data)))
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailed).
			Path(path).
			Detail("parse JSON: %s", errorText(err)).
			Build()
	}
	mod := vm.NewObject()
	_ = mod.Set("exports", v)
	l.cache[path] = mod
	return mod, nil
}

func (l *loader) loadWasm(path string) (*goja.Object, error) {
	vm := l.vm()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.LoadFailed(path, err)
	}
	m, err := l.e.wasm.Load(context.Background(), path, data)
	if err != nil {
		return nil, err
	}
	mod := vm.NewObject()
	_ = mod.Set("exports", m.Bind(vm))
	l.cache[path] = mod
	return mod, nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
