package config

import (
	"time"

	"github.com/wippyai/js-bridge/async"
	"github.com/wippyai/js-bridge/engine"
	"github.com/wippyai/js-bridge/metrics"
	"github.com/wippyai/js-bridge/resolver"
)

// Default values for configuration fields.
const (
	DefaultArgumentPolicy = "lenient"
	DefaultFetchTimeout   = 30 * time.Second
	DefaultUserAgent      = "js-bridge"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultWatchDebounce  = 200 * time.Millisecond
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults.
func ApplyDefaults(cfg *Config) {
	e := &cfg.Engine
	if e.PackagesDir == "" {
		e.PackagesDir = resolver.DefaultPackagesDir
	}
	if len(e.MainFields) == 0 {
		e.MainFields = []string{"module"}
	}
	if e.DefaultMain == "" {
		e.DefaultMain = resolver.DefaultMainFile
	}
	if e.Workers == 0 {
		e.Workers = async.DefaultWorkers
	}
	if e.ArgumentPolicy == "" {
		e.ArgumentPolicy = DefaultArgumentPolicy
	}
	if e.HostGlobal == "" {
		e.HostGlobal = engine.DefaultHostGlobal
	}

	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = DefaultFetchTimeout
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = DefaultUserAgent
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = metrics.DefaultNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = metrics.DefaultPath
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}
}
