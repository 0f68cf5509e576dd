package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wippyai/js-bridge/errors"
	"github.com/wippyai/js-bridge/resolver"
)

// DefaultDebounce is the quiet period before a change triggers a reload.
const DefaultDebounce = 200 * time.Millisecond

// Extensions are the file types whose changes trigger a reload.
var Extensions = []string{".mjs", ".js", ".cjs", ".ts", ".json", ".wasm"}

// Reloader re-registers a module from its file. *engine.Engine
// implements it.
type Reloader interface {
	Reload(ctx context.Context, module string) error
}

// Watcher reloads file-registered modules when files under their
// directory change. Bursts of events for one module collapse into a
// single reload.
type Watcher struct {
	fs       *fsnotify.Watcher
	log      *zap.Logger
	modules  map[string]string
	timers   map[string]*time.Timer
	dirs     map[string]bool
	skipDir  string
	debounce time.Duration
	mu       sync.Mutex
	running  bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPackagesDir sets the package directory name skipped while walking,
// matching the resolver's packages_dir. Empty keeps the default.
func WithPackagesDir(name string) Option {
	return func(w *Watcher) {
		if name != "" {
			w.skipDir = name
		}
	}
}

// New creates a watcher. A non-positive debounce uses DefaultDebounce.
func New(debounce time.Duration, opts ...Option) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindLoadFailed, err, "create fsnotify watcher")
	}
	w := &Watcher{
		fs:       fs,
		log:      Logger(),
		modules:  make(map[string]string),
		timers:   make(map[string]*time.Timer),
		dirs:     make(map[string]bool),
		skipDir:  resolver.DefaultPackagesDir,
		debounce: debounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add watches the directory tree containing path on behalf of module.
// Package directories and hidden directories are skipped.
func (w *Watcher) Add(module, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "resolve "+path)
	}
	root := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.modules[module] = root

	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(p)
		if p != root && (strings.HasPrefix(base, ".") || base == w.skipDir) {
			return filepath.SkipDir
		}
		if w.dirs[p] {
			return nil
		}
		if err := w.fs.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		w.dirs[p] = true
		w.log.Debug("watching directory", zap.String("module", module), zap.String("dir", p))
		return nil
	})
}

// Modules lists watched module names.
func (w *Watcher) Modules() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.modules))
	for name := range w.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run processes events until ctx is done, reloading affected modules
// through r. Reload failures are logged and watching continues.
func (w *Watcher) Run(ctx context.Context, r Reloader) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.AlreadyInitialized("watcher")
	}
	w.running = true
	w.mu.Unlock()

	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !shouldProcess(event) {
				continue
			}
			for _, module := range w.affected(event.Name) {
				w.trigger(ctx, r, module, event)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// Close stops watching. Run returns once the event channels close.
func (w *Watcher) Close() error {
	w.stopTimers()
	return w.fs.Close()
}

func (w *Watcher) affected(path string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for module, root := range w.modules {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			out = append(out, module)
		}
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) trigger(ctx context.Context, r Reloader, module string, event fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[module]; ok {
		t.Stop()
	}
	w.timers[module] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, module)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}

		w.log.Info("reloading module", zap.String("module", module),
			zap.String("path", event.Name), zap.String("op", event.Op.String()))
		if err := r.Reload(ctx, module); err != nil {
			w.log.Error("module reload failed", zap.String("module", module), zap.Error(err))
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for module, t := range w.timers {
		t.Stop()
		delete(w.timers, module)
	}
}

func shouldProcess(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
