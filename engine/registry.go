package engine

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/js-bridge/errors"
	"github.com/wippyai/js-bridge/marshal"
	"github.com/wippyai/js-bridge/resolver"
)

// Module is a registered script module. Its fields are owned by the loop.
type Module struct {
	state    goja.Value
	funcs    map[string]goja.Callable
	Name     string
	Path     string
	args     []marshal.Arg
	names    []string
	FromFile bool
}

// Register evaluates sourceOrPath as a module and stores it under name.
// sourceOrPath is read as a file when it names an existing file and is
// treated as inline source otherwise. The module's default export must
// be an object with an init function and a functions object; init is
// called with args and its result (awaited if it is a promise) becomes
// the module state. The module is mirrored on globalThis under name, so
// a name already used by a global that is not a registered module
// (console, fetch, require, the host bridge object, a host function,
// a language builtin) is rejected as a module contract error.
// Registering an existing module name replaces it. On any failure the
// registry is left unchanged.
func (e *Engine) Register(ctx context.Context, name, sourceOrPath string, args []marshal.Arg) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseRegister, "module name cannot be empty")
	}
	path, source, fromFile, err := readSource(name, sourceOrPath)
	if err != nil {
		e.metrics.Registration(false)
		return err
	}

	err = e.run(ctx, errors.PhaseRegister, func() error {
		return e.register(ctx, &Module{Name: name, Path: path, FromFile: fromFile, args: args}, source)
	})
	e.metrics.Registration(err == nil)
	if err != nil {
		e.log.Warn("module registration failed", zap.String("module", name), zap.Error(err))
		return err
	}
	e.log.Info("module registered", zap.String("module", name), zap.String("path", path))
	return nil
}

// RegisterRaw decodes native argument slots and registers the module.
func (e *Engine) RegisterRaw(ctx context.Context, name, sourceOrPath string, raws []marshal.Raw) error {
	args, err := e.Decode(raws)
	if err != nil {
		return err
	}
	return e.Register(ctx, name, sourceOrPath, args)
}

func readSource(name, sourceOrPath string) (path, source string, fromFile bool, err error) {
	if info, statErr := os.Stat(sourceOrPath); statErr == nil && info.Mode().IsRegular() {
		abs, err := filepath.Abs(sourceOrPath)
		if err != nil {
			return "", "", false, errors.LoadFailed(sourceOrPath, err)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return "", "", false, errors.LoadFailed(abs, err)
		}
		return abs, string(data), true, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", "", false, errors.LoadFailed(sourceOrPath, err)
	}
	return filepath.Join(cwd, name+".js"), sourceOrPath, false, nil
}

// register runs on the loop.
func (e *Engine) register(ctx context.Context, m *Module, source string) error {
	vm := e.loop.vm
	if e.shadowsGlobal(m.Name) {
		return errors.ModuleContract(m.Name, "name is already taken by a global")
	}
	if _, err := resolver.CheckType(m.Path, resolver.TypeScript); err != nil {
		return err
	}

	mod, err := e.loader.evalScript(m.Path, source, false)
	if err != nil {
		return err
	}
	def, err := defaultExport(vm, m.Name, mod)
	if err != nil {
		return err
	}

	initFn, ok := goja.AssertFunction(def.Get("init"))
	if !ok {
		return errors.ModuleContract(m.Name, "default export has no init function")
	}
	fv := def.Get("functions")
	if fv == nil || goja.IsUndefined(fv) || goja.IsNull(fv) {
		return errors.ModuleContract(m.Name, "default export has no functions object")
	}
	fobj, ok := fv.(*goja.Object)
	if !ok {
		return errors.ModuleContract(m.Name, "functions must be an object")
	}

	m.funcs = make(map[string]goja.Callable)
	for _, key := range fobj.Keys() {
		m.names = append(m.names, key)
		if fn, ok := goja.AssertFunction(fobj.Get(key)); ok {
			m.funcs[key] = fn
		}
	}
	sort.Strings(m.names)

	state, err := initFn(def, marshal.Positional(vm, m.args)...)
	if err != nil {
		return errors.Execution(errors.PhaseRegister, []string{m.Name, "init"}, errorText(err), err)
	}
	if state, err = e.settle(ctx, state, errors.PhaseRegister, m.Name, "init"); err != nil {
		return err
	}
	m.state = state

	global := vm.NewObject()
	_ = global.Set("state", state)
	for _, key := range fobj.Keys() {
		_ = global.Set(key, fobj.Get(key))
	}
	_ = vm.Set(m.Name, global)

	if prev, ok := e.modules[m.Name]; ok {
		e.log.Debug("replacing module", zap.String("module", m.Name), zap.String("previous", prev.Path))
	}
	e.modules[m.Name] = m
	return nil
}

// shadowsGlobal reports whether name is taken on globalThis by something
// other than a registered module, such as console, fetch, require, the
// host bridge object or a host function. Runs on the loop.
func (e *Engine) shadowsGlobal(name string) bool {
	if _, ok := e.modules[name]; ok {
		return false
	}
	return e.loop.vm.GlobalObject().Get(name) != nil
}

// defaultExport picks exports.default, or module.exports itself for
// CommonJS modules that assign {init, functions} directly.
func defaultExport(vm *goja.Runtime, name string, mod *goja.Object) (*goja.Object, error) {
	exports := mod.Get("exports")
	if exports == nil || goja.IsUndefined(exports) || goja.IsNull(exports) {
		return nil, errors.ModuleContract(name, "module has no exports")
	}
	eobj := exports.ToObject(vm)

	def := eobj.Get("default")
	if def == nil || goja.IsUndefined(def) || goja.IsNull(def) {
		if init := eobj.Get("init"); init != nil && !goja.IsUndefined(init) {
			return eobj, nil
		}
		return nil, errors.ModuleContract(name, "module does not export a default object")
	}
	dobj, ok := def.(*goja.Object)
	if !ok {
		return nil, errors.ModuleContract(name, "default export is not an object")
	}
	return dobj, nil
}

// settle drains the loop and unwraps v when it is a promise. A rejection
// becomes an execution error carrying the rejection text; a promise that
// is still pending once nothing else can run yields undefined.
func (e *Engine) settle(ctx context.Context, v goja.Value, phase errors.Phase, path ...string) (goja.Value, error) {
	if err := e.loop.drain(ctx); err != nil {
		return nil, err
	}
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), nil
	case goja.PromiseStateRejected:
		return nil, errors.Execution(phase, path, valueText(p.Result()), nil)
	default:
		return goja.Undefined(), nil
	}
}

// IsRegistered reports whether name is a registered module.
func (e *Engine) IsRegistered(ctx context.Context, name string) bool {
	var ok bool
	err := e.run(ctx, errors.PhaseInvoke, func() error {
		_, ok = e.modules[name]
		return nil
	})
	return err == nil && ok
}

// Invoke calls module.function with (state, ...args, correlationID) and
// returns its settled result exported to Go values.
func (e *Engine) Invoke(ctx context.Context, module, function string, correlationID int32, args []marshal.Arg) (any, error) {
	start := time.Now()
	var result any
	err := e.run(ctx, errors.PhaseInvoke, func() error {
		m, ok := e.modules[module]
		if !ok {
			return errors.NotFound(errors.PhaseInvoke, "module", module)
		}
		fn, ok := m.funcs[function]
		if !ok {
			if containsString(m.names, function) {
				return errors.New(errors.PhaseInvoke, errors.KindModuleContract).
					Path(module, function).
					Detail("export %q is not callable", function).
					Build()
			}
			return errors.New(errors.PhaseInvoke, errors.KindNotFound).
				Path(module, function).
				Detail("function %q not found", function).
				Build()
		}

		vm := e.loop.vm
		v, err := fn(goja.Undefined(), marshal.Invocation(vm, m.state, args, correlationID)...)
		if err != nil {
			return errors.Execution(errors.PhaseInvoke, []string{module, function}, errorText(err), err)
		}
		if v, err = e.settle(ctx, v, errors.PhaseInvoke, module, function); err != nil {
			return err
		}
		result = exportValue(v)
		return nil
	})
	e.metrics.Invocation(module, err == nil, time.Since(start))
	if err != nil {
		e.log.Debug("invoke failed",
			zap.String("module", module), zap.String("function", function),
			zap.Int32("correlation_id", correlationID), zap.Error(err))
	}
	return result, err
}

// InvokeRaw decodes native argument slots and invokes the function.
func (e *Engine) InvokeRaw(ctx context.Context, module, function string, correlationID int32, raws []marshal.Raw) (any, error) {
	args, err := e.Decode(raws)
	if err != nil {
		return nil, err
	}
	return e.Invoke(ctx, module, function, correlationID, args)
}

// Modules lists registered module names in order.
func (e *Engine) Modules(ctx context.Context) ([]string, error) {
	var names []string
	err := e.run(ctx, errors.PhaseInvoke, func() error {
		for name := range e.modules {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil
	})
	return names, err
}

// Functions lists the callable functions of module.
func (e *Engine) Functions(ctx context.Context, module string) ([]string, error) {
	var names []string
	err := e.run(ctx, errors.PhaseInvoke, func() error {
		m, ok := e.modules[module]
		if !ok {
			return errors.NotFound(errors.PhaseInvoke, "module", module)
		}
		for _, n := range m.names {
			if _, ok := m.funcs[n]; ok {
				names = append(names, n)
			}
		}
		return nil
	})
	return names, err
}

// ModulePath returns the source file of a module registered from disk.
func (e *Engine) ModulePath(ctx context.Context, module string) (string, bool) {
	var path string
	var ok bool
	_ = e.run(ctx, errors.PhaseInvoke, func() error {
		if m, found := e.modules[module]; found && m.FromFile {
			path, ok = m.Path, true
		}
		return nil
	})
	return path, ok
}

// Reload re-reads a file-registered module and registers it again with
// its original arguments. Required modules are re-evaluated too.
func (e *Engine) Reload(ctx context.Context, module string) error {
	var prev Module
	err := e.run(ctx, errors.PhaseRegister, func() error {
		m, ok := e.modules[module]
		if !ok {
			return errors.NotFound(errors.PhaseRegister, "module", module)
		}
		if !m.FromFile {
			return errors.InvalidInput(errors.PhaseRegister, "module "+module+" was registered from inline source")
		}
		prev = *m
		return nil
	})
	if err != nil {
		return err
	}

	data, err := os.ReadFile(prev.Path)
	if err != nil {
		return errors.LoadFailed(prev.Path, err)
	}
	err = e.run(ctx, errors.PhaseRegister, func() error {
		e.loader.reset()
		return e.register(ctx, &Module{Name: prev.Name, Path: prev.Path, FromFile: true, args: prev.args}, string(data))
	})
	e.metrics.Registration(err == nil)
	if err != nil {
		e.log.Warn("module reload failed", zap.String("module", module), zap.Error(err))
		return err
	}
	e.log.Info("module reloaded", zap.String("module", module))
	return nil
}

// Eval runs source as a global script and returns its settled value.
func (e *Engine) Eval(ctx context.Context, source string) (any, error) {
	var result any
	err := e.run(ctx, errors.PhaseInvoke, func() error {
		v, err := e.loop.vm.RunString(source)
		if err != nil {
			return errors.Execution(errors.PhaseInvoke, nil, errorText(err), err)
		}
		if v, err = e.settle(ctx, v, errors.PhaseInvoke); err != nil {
			return err
		}
		result = exportValue(v)
		return nil
	})
	return result, err
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
