package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/js-bridge/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "JSBRIDGE_"

// EnvConfigPath names the variable holding the configuration file path.
const EnvConfigPath = EnvPrefix + "CONFIG"

// LoadConfig reads a YAML file, applies defaults and validates the result.
// Environment variables are not consulted.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindLoadFailed).
			Path(path).
			Detail("read configuration file").
			Cause(err).
			Build()
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse configuration")
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads path and then applies JSBRIDGE_SECTION_FIELD
// environment variables, which take precedence over the file.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv loads the file named by JSBRIDGE_CONFIG when set, or starts
// from defaults, and then applies environment overrides.
func FromEnv() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return LoadConfigWithEnvOverrides(path)
	}
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Engine overrides
	if val := os.Getenv("JSBRIDGE_ENGINE_PACKAGES_DIR"); val != "" {
		cfg.Engine.PackagesDir = val
	}
	if val := os.Getenv("JSBRIDGE_ENGINE_MAIN_FIELDS"); val != "" {
		cfg.Engine.MainFields = splitList(val)
	}
	if val := os.Getenv("JSBRIDGE_ENGINE_DEFAULT_MAIN"); val != "" {
		cfg.Engine.DefaultMain = val
	}
	if val := os.Getenv("JSBRIDGE_ENGINE_WORKERS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Engine.Workers = i
		}
	}
	if val := os.Getenv("JSBRIDGE_ENGINE_ARGUMENT_POLICY"); val != "" {
		cfg.Engine.ArgumentPolicy = val
	}
	if val := os.Getenv("JSBRIDGE_ENGINE_TRANSPILE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Engine.Transpile = &b
		}
	}
	if val := os.Getenv("JSBRIDGE_ENGINE_HOST_GLOBAL"); val != "" {
		cfg.Engine.HostGlobal = val
	}

	// Fetch overrides
	if val := os.Getenv("JSBRIDGE_FETCH_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Fetch.Timeout = d
		}
	}
	if val := os.Getenv("JSBRIDGE_FETCH_USER_AGENT"); val != "" {
		cfg.Fetch.UserAgent = val
	}
	if val := os.Getenv("JSBRIDGE_FETCH_MAX_BODY_BYTES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Fetch.MaxBodyBytes = i
		}
	}

	// Logging overrides
	if val := os.Getenv("JSBRIDGE_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("JSBRIDGE_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	// Metrics overrides
	if val := os.Getenv("JSBRIDGE_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("JSBRIDGE_METRICS_NAMESPACE"); val != "" {
		cfg.Metrics.Namespace = val
	}
	if val := os.Getenv("JSBRIDGE_METRICS_LISTEN"); val != "" {
		cfg.Metrics.Listen = val
	}
	if val := os.Getenv("JSBRIDGE_METRICS_PATH"); val != "" {
		cfg.Metrics.Path = val
	}

	// Watch overrides
	if val := os.Getenv("JSBRIDGE_WATCH_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Watch.Enabled = b
		}
	}
	if val := os.Getenv("JSBRIDGE_WATCH_DEBOUNCE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Watch.Debounce = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
