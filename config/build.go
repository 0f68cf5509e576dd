package config

import (
	"go.uber.org/zap"

	"github.com/wippyai/js-bridge/engine"
	"github.com/wippyai/js-bridge/errors"
	"github.com/wippyai/js-bridge/marshal"
	"github.com/wippyai/js-bridge/metrics"
	"github.com/wippyai/js-bridge/resolver"
)

// BuildLogger constructs the zap logger described by l. The json format
// uses the production encoder and console the development one.
func BuildLogger(l LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

// ResolverOptions returns the resolver settings from the engine section.
func (c *Config) ResolverOptions() []resolver.Option {
	return []resolver.Option{
		resolver.WithPackagesDir(c.Engine.PackagesDir),
		resolver.WithMainFields(c.Engine.MainFields...),
		resolver.WithDefaultMain(c.Engine.DefaultMain),
	}
}

// NewCollector returns a metrics collector when metrics are enabled and
// nil otherwise. A nil collector records nothing.
func (c *Config) NewCollector() *metrics.Collector {
	if !c.Metrics.Enabled {
		return nil
	}
	return metrics.NewCollector(c.Metrics.Namespace, nil)
}

// ServeMetrics starts the scrape endpoint for m on metrics.listen. It
// returns a nil server when m is nil or no listen address is set.
func (c *Config) ServeMetrics(m *metrics.Collector) (*metrics.Server, error) {
	if m == nil || c.Metrics.Listen == "" {
		return nil, nil
	}
	srv, err := m.Serve(c.Metrics.Listen, c.Metrics.Path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "listen "+c.Metrics.Listen)
	}
	return srv, nil
}

// EngineOptions translates the configuration into engine options. log
// and m may be nil.
func (c *Config) EngineOptions(log *zap.Logger, m *metrics.Collector) []engine.Option {
	policy, _ := marshal.ParsePolicy(c.Engine.ArgumentPolicy)
	opts := []engine.Option{
		engine.WithResolver(resolver.New(c.ResolverOptions()...)),
		engine.WithWorkers(c.Engine.Workers),
		engine.WithArgumentPolicy(policy),
		engine.WithTranspile(c.Engine.TranspileEnabled()),
		engine.WithHostGlobal(c.Engine.HostGlobal),
		engine.WithFetchTimeout(c.Fetch.Timeout),
		engine.WithUserAgent(c.Fetch.UserAgent),
		engine.WithMaxBodyBytes(c.Fetch.MaxBodyBytes),
	}
	if log != nil {
		opts = append(opts, engine.WithLogger(log))
	}
	if m != nil {
		opts = append(opts, engine.WithMetrics(m))
	}
	return opts
}
