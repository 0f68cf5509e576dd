package wasmmod

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/js-bridge/errors"
)

const wasiModuleName = "wasi_snapshot_preview1"

// Config holds runtime limits.
type Config struct {
	// MemoryLimitPages caps linear memory per module (64 KiB pages). Zero
	// keeps the wazero default.
	MemoryLimitPages uint32
}

// Runtime instantiates binary modules for scripts. Safe for concurrent use.
type Runtime struct {
	rt      wazero.Runtime
	modules map[string]*Module
	mu      sync.Mutex
	wasi    bool
}

// NewRuntime creates a runtime with default limits.
func NewRuntime(ctx context.Context) *Runtime {
	return NewRuntimeWithConfig(ctx, nil)
}

// NewRuntimeWithConfig creates a runtime with custom limits.
func NewRuntimeWithConfig(ctx context.Context, cfg *Config) *Runtime {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Runtime{
		rt:      wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		modules: make(map[string]*Module),
	}
}

// Load compiles and instantiates data under name. Loading a name again
// closes the previous instance first.
func (r *Runtime) Load(ctx context.Context, name string, data []byte) (*Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	compiled, err := r.rt.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailed).
			Path(name).
			Detail("compile wasm").
			Cause(err).
			Build()
	}

	if needsWASI(compiled) && !r.wasi {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.rt); err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindLoadFailed, err, "instantiate WASI")
		}
		r.wasi = true
	}

	if prev, ok := r.modules[name]; ok {
		_ = prev.mod.Close(ctx)
		delete(r.modules, name)
	}

	inst, err := r.rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailed).
			Path(name).
			Detail("instantiate wasm").
			Cause(err).
			Build()
	}

	m := &Module{name: name, mod: inst}
	for exportName, def := range compiled.ExportedFunctions() {
		m.exports = append(m.exports, Export{
			Name:    exportName,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		})
	}
	sort.Slice(m.exports, func(i, j int) bool { return m.exports[i].Name < m.exports[j].Name })
	r.modules[name] = m

	Logger().Debug("wasm module loaded", zap.String("name", name), zap.Int("exports", len(m.exports)))
	return m, nil
}

func needsWASI(compiled wazero.CompiledModule) bool {
	for _, def := range compiled.ImportedFunctions() {
		if moduleName, _, ok := def.Import(); ok && moduleName == wasiModuleName {
			return true
		}
	}
	return false
}

// Close releases every module and the runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = make(map[string]*Module)
	return r.rt.Close(ctx)
}

// Export describes one exported function.
type Export struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Module is an instantiated binary module.
type Module struct {
	mod     api.Module
	name    string
	exports []Export
}

// Name returns the name the module was loaded under.
func (m *Module) Name() string {
	return m.name
}

// Exports lists exported functions sorted by name.
func (m *Module) Exports() []Export {
	return m.exports
}

// Call invokes an exported function with numeric arguments and returns
// its numeric results.
func (m *Module) Call(ctx context.Context, name string, args ...float64) ([]float64, error) {
	exp, ok := m.export(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseInvoke, "wasm export", name)
	}
	if len(args) != len(exp.Params) {
		return nil, errors.InvalidInput(errors.PhaseInvoke,
			fmt.Sprintf("%s expects %d arguments, got %d", name, len(exp.Params), len(args)))
	}

	params := make([]uint64, len(args))
	for i, a := range args {
		params[i] = encode(exp.Params[i], a)
	}
	raw, err := m.mod.ExportedFunction(name).Call(ctx, params...)
	if err != nil {
		return nil, errors.Execution(errors.PhaseInvoke, []string{m.name, name}, err.Error(), err)
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = decode(exp.Results[i], v)
	}
	return out, nil
}

func (m *Module) export(name string) (Export, bool) {
	for _, e := range m.exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}

func encode(t api.ValueType, v float64) uint64 {
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(v))
	case api.ValueTypeI64:
		return api.EncodeI64(int64(v))
	case api.ValueTypeF32:
		return api.EncodeF32(float32(v))
	default:
		return api.EncodeF64(v)
	}
}

func decode(t api.ValueType, v uint64) float64 {
	switch t {
	case api.ValueTypeI32:
		return float64(api.DecodeI32(v))
	case api.ValueTypeI64:
		return float64(int64(v))
	case api.ValueTypeF32:
		return float64(api.DecodeF32(v))
	default:
		return api.DecodeF64(v)
	}
}
