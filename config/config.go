package config

import "time"

// Config is the complete bridge configuration.
type Config struct {
	// Engine controls module resolution and the script runtime.
	Engine EngineConfig `yaml:"engine"`

	// Fetch configures the fetch global.
	Fetch FetchConfig `yaml:"fetch"`

	// Logging configures the zap logger.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the prometheus collector.
	Metrics MetricsConfig `yaml:"metrics"`

	// Watch configures hot reload of file-registered modules.
	Watch WatchConfig `yaml:"watch"`
}

// EngineConfig holds engine and resolver settings.
type EngineConfig struct {
	// Transpile enables ES module and TypeScript transpilation. Nil means
	// the default (enabled).
	Transpile *bool `yaml:"transpile"`

	// PackagesDir is the directory name searched for bare specifiers.
	PackagesDir string `yaml:"packages_dir"`

	// DefaultMain is the package entry file used when no main field is set.
	DefaultMain string `yaml:"default_main"`

	// ArgumentPolicy is "lenient" or "strict".
	ArgumentPolicy string `yaml:"argument_policy"`

	// HostGlobal names the script-side host bridge object.
	HostGlobal string `yaml:"host_global"`

	// MainFields are the manifest fields consulted for a package entry.
	MainFields []string `yaml:"main_fields"`

	// Workers bounds concurrent background tasks.
	Workers int `yaml:"workers"`
}

// TranspileEnabled reports the effective transpile setting.
func (e EngineConfig) TranspileEnabled() bool {
	return e.Transpile == nil || *e.Transpile
}

// FetchConfig holds fetch settings.
type FetchConfig struct {
	UserAgent    string        `yaml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`

	// Listen is the host:port of the scrape endpoint. Empty disables it;
	// metrics are still collected.
	Listen string `yaml:"listen"`

	// Path is the scrape endpoint path.
	Path string `yaml:"path"`

	Enabled bool `yaml:"enabled"`
}

// WatchConfig holds hot reload settings.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Enabled  bool          `yaml:"enabled"`
}
