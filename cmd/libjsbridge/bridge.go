package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/js-bridge/config"
	"github.com/wippyai/js-bridge/engine"
	"github.com/wippyai/js-bridge/errors"
	"github.com/wippyai/js-bridge/marshal"
	"github.com/wippyai/js-bridge/message"
	"github.com/wippyai/js-bridge/metrics"
	"github.com/wippyai/js-bridge/resolver"
	"github.com/wippyai/js-bridge/session"
	"github.com/wippyai/js-bridge/wasmmod"
	"github.com/wippyai/js-bridge/watch"
)

// bridge backs the exported C functions. The C surface addresses one
// runtime at a time; it lives in the session table under current.
type bridge struct {
	table   *session.Table
	log     *zap.Logger
	watcher *watch.Watcher
	metrics *metrics.Server
	stop    context.CancelFunc
	loadCfg func() (*config.Config, error)
	mu      sync.Mutex
	current session.Handle
}

func newBridge() *bridge {
	return &bridge{
		table:   session.NewTable(),
		log:     zap.NewNop(),
		loadCfg: config.FromEnv,
	}
}

func (b *bridge) init(version engine.APIVersion, port message.Port) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.table.Get(b.current); ok {
		return errors.AlreadyInitialized("runtime")
	}

	cfg, err := b.loadCfg()
	if err != nil {
		return err
	}
	log, err := config.BuildLogger(cfg.Logging)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "build logger")
	}
	setLoggers(log)
	b.log = log

	collector := cfg.NewCollector()
	e := engine.New(cfg.EngineOptions(log, collector)...)
	if err := e.Init(context.Background(), engine.HostAPI{Version: version, Port: port}); err != nil {
		_ = e.Dispose()
		return err
	}
	srv, err := cfg.ServeMetrics(collector)
	if err != nil {
		_ = e.Dispose()
		return err
	}
	h, err := b.table.Insert(e)
	if err != nil {
		_ = e.Dispose()
		_ = srv.Close(context.Background())
		return errors.Wrap(errors.PhaseInit, errors.KindDisposed, err, "store session")
	}
	b.current = h
	b.metrics = srv
	if srv != nil {
		log.Info("serving metrics", zap.String("addr", srv.Addr()), zap.String("path", cfg.Metrics.Path))
	}

	if cfg.Watch.Enabled {
		b.startWatcher(e, cfg)
	}
	log.Info("runtime initialized", zap.Stringer("session", e.ID()), zap.Uint32("handle", uint32(h)))
	return nil
}

func (b *bridge) startWatcher(e *engine.Engine, cfg *config.Config) {
	w, err := watch.New(cfg.Watch.Debounce, watch.WithPackagesDir(cfg.Engine.PackagesDir))
	if err != nil {
		b.log.Warn("hot reload disabled", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.watcher, b.stop = w, cancel
	go func() {
		if err := w.Run(ctx, e); err != nil {
			b.log.Warn("watcher stopped", zap.Error(err))
		}
	}()
}

func (b *bridge) engine(phase errors.Phase) (*engine.Engine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.table.Get(b.current)
	if !ok {
		return nil, errors.NotInitialized(phase, "runtime")
	}
	return e, nil
}

func (b *bridge) register(name, sourceOrPath string, raws []marshal.Raw) error {
	e, err := b.engine(errors.PhaseRegister)
	if err != nil {
		return err
	}
	if err := e.RegisterRaw(context.Background(), name, sourceOrPath, raws); err != nil {
		return err
	}

	b.mu.Lock()
	w := b.watcher
	b.mu.Unlock()
	if w != nil {
		if path, ok := e.ModulePath(context.Background(), name); ok {
			if err := w.Add(name, path); err != nil {
				b.log.Warn("watch module", zap.String("module", name), zap.Error(err))
			}
		}
	}
	return nil
}

func (b *bridge) isRegistered(name string) bool {
	e, err := b.engine(errors.PhaseInvoke)
	if err != nil {
		return false
	}
	return e.IsRegistered(context.Background(), name)
}

// call invokes a function. The result value stays in script; hosts get
// data back through the message port.
func (b *bridge) call(module, function string, correlationID int32, raws []marshal.Raw) error {
	e, err := b.engine(errors.PhaseInvoke)
	if err != nil {
		return err
	}
	_, err = e.InvokeRaw(context.Background(), module, function, correlationID, raws)
	return err
}

func (b *bridge) dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stop != nil {
		b.stop()
		_ = b.watcher.Close()
		b.watcher, b.stop = nil, nil
	}
	if b.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = b.metrics.Close(ctx)
		cancel()
		b.metrics = nil
	}
	if b.table.Remove(b.current) {
		b.log.Info("runtime disposed")
		_ = b.log.Sync()
	}
	b.current = 0
}

func setLoggers(log *zap.Logger) {
	engine.SetLogger(log)
	resolver.SetLogger(log.Named("resolver"))
	marshal.SetLogger(log.Named("marshal"))
	wasmmod.SetLogger(log.Named("wasm"))
	watch.SetLogger(log.Named("watch"))
}
