package engine

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/js-bridge/async"
	"github.com/wippyai/js-bridge/errors"
	"github.com/wippyai/js-bridge/marshal"
	"github.com/wippyai/js-bridge/message"
	"github.com/wippyai/js-bridge/metrics"
	"github.com/wippyai/js-bridge/resolver"
	"github.com/wippyai/js-bridge/wasmmod"
)

// State is the engine lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateDisposed:
		return "disposed"
	default:
		return "uninitialized"
	}
}

// DefaultHostGlobal is the name of the script-side host bridge object.
const DefaultHostGlobal = "Host"

// HostAPI is what the host presents at Init.
type HostAPI struct {
	Port    message.Port
	Version APIVersion
}

// Engine owns one goja runtime and the modules registered into it. All
// script access runs on a single loop goroutine; the exported methods
// may be called from any goroutine and block until the loop has served
// them.
type Engine struct {
	id      uuid.UUID
	log     *zap.Logger
	metrics *metrics.Collector
	res     *resolver.Resolver
	client  *http.Client
	state   atomic.Int32
	mu      sync.Mutex

	workers      int
	policy       marshal.Policy
	transpile    bool
	hostGlobal   string
	userAgent    string
	maxBodyBytes int64
	hostFuncs    []hostFunc

	loop *loop
	pool *async.Pool
	wasm *wasmmod.Runtime
	port message.Port

	// owned by the loop goroutine
	modules map[string]*Module
	loader  *loader
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithResolver replaces the default module resolver.
func WithResolver(r *resolver.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.res = r
		}
	}
}

// WithWorkers bounds concurrent background tasks.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithArgumentPolicy selects how undecodable native arguments are handled.
func WithArgumentPolicy(p marshal.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithTranspile toggles ES module and TypeScript transpilation.
func WithTranspile(on bool) Option {
	return func(e *Engine) { e.transpile = on }
}

// WithHostGlobal renames the script-side host bridge object.
func WithHostGlobal(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.hostGlobal = name
		}
	}
}

// WithHTTPClient sets the client used by fetch.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		if c != nil {
			e.client = c
		}
	}
}

// WithFetchTimeout sets the fetch client timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.client = &http.Client{Timeout: d}
		}
	}
}

// WithUserAgent sets the User-Agent fetch sends when the script sets none.
func WithUserAgent(ua string) Option {
	return func(e *Engine) { e.userAgent = ua }
}

// WithMaxBodyBytes limits response bodies read by fetch. Zero is unlimited.
func WithMaxBodyBytes(n int64) Option {
	return func(e *Engine) { e.maxBodyBytes = n }
}

// New creates an uninitialized engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		id:         uuid.New(),
		log:        Logger(),
		res:        resolver.New(),
		client:     &http.Client{Timeout: 30 * time.Second},
		workers:    async.DefaultWorkers,
		transpile:  true,
		hostGlobal: DefaultHostGlobal,
		modules:    make(map[string]*Module),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(zap.String("session", e.id.String()))
	return e
}

// ID returns the engine's session id.
func (e *Engine) ID() uuid.UUID {
	return e.id
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Init performs the host handshake and starts the engine. It fails with
// a version mismatch when the host API is incompatible and with
// already_initialized on a second call.
func (e *Engine) Init(ctx context.Context, host HostAPI) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.State() {
	case StateInitialized:
		return errors.AlreadyInitialized("engine")
	case StateDisposed:
		return errors.Disposed()
	}

	if !host.Version.Compatible() {
		e.log.Error("host handshake failed",
			zap.Stringer("host", host.Version),
			zap.Stringer("bridge", APIVersion{Major: APIMajor, Minor: APIMinor}))
		return errors.VersionMismatch(host.Version.Major, host.Version.Minor, APIMajor, APIMinor)
	}

	e.port = host.Port
	if e.port == nil {
		e.port = message.NopPort{}
	}

	e.pool = async.NewPool(e.workers, async.Hooks{
		Started:  e.metrics.AsyncStarted,
		Finished: e.metrics.AsyncFinished,
	})
	e.wasm = wasmmod.NewRuntime(context.Background())
	e.loop = newLoop(e.log, e.pool)
	e.loop.start()

	if err := e.loop.do(ctx, e.setup); err != nil {
		e.teardown()
		return err
	}

	e.state.Store(int32(StateInitialized))
	e.log.Info("engine initialized", zap.Stringer("host_api", host.Version))
	return nil
}

// Dispose releases the engine. It is idempotent; calls after the first
// return nil.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.State()
	if prev == StateDisposed {
		return nil
	}
	e.state.Store(int32(StateDisposed))
	if prev == StateInitialized {
		e.teardown()
		e.log.Info("engine disposed")
	}
	return nil
}

func (e *Engine) teardown() {
	if e.loop != nil {
		e.loop.stop()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.wasm != nil {
		if err := e.wasm.Close(context.Background()); err != nil {
			e.log.Warn("close wasm runtime", zap.Error(err))
		}
	}
	e.modules = nil
	e.loader = nil
}

// run checks the lifecycle and hands fn to the loop.
func (e *Engine) run(ctx context.Context, phase errors.Phase, fn func() error) error {
	switch e.State() {
	case StateUninitialized:
		return errors.NotInitialized(phase, "engine")
	case StateDisposed:
		return errors.Disposed()
	}
	return e.loop.do(ctx, fn)
}

// Decode converts native argument slots using the engine's policy.
func (e *Engine) Decode(raws []marshal.Raw) ([]marshal.Arg, error) {
	return marshal.Decode(raws, e.policy)
}
