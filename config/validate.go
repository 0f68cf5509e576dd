package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/js-bridge/marshal"
)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// FieldError is a validation failure for one field.
type FieldError struct {
	// Field is the dotted path, e.g. "engine.workers".
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "configuration validation failed: " + e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate checks cfg and returns a ValidationError listing every problem.
func Validate(cfg *Config) error {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	e := cfg.Engine
	if strings.ContainsAny(e.PackagesDir, `/\`) {
		add("engine.packages_dir", "must be a directory name, got %q", e.PackagesDir)
	}
	for i, f := range e.MainFields {
		if strings.TrimSpace(f) == "" {
			add(fmt.Sprintf("engine.main_fields[%d]", i), "must not be empty")
		}
	}
	if e.Workers < 1 {
		add("engine.workers", "must be at least 1, got %d", e.Workers)
	}
	if _, err := marshal.ParsePolicy(e.ArgumentPolicy); err != nil {
		add("engine.argument_policy", "must be lenient or strict, got %q", e.ArgumentPolicy)
	}
	if !identifier.MatchString(e.HostGlobal) {
		add("engine.host_global", "must be a script identifier, got %q", e.HostGlobal)
	}

	if cfg.Fetch.Timeout < 0 {
		add("fetch.timeout", "must not be negative")
	}
	if cfg.Fetch.MaxBodyBytes < 0 {
		add("fetch.max_body_bytes", "must not be negative")
	}

	if _, err := zap.ParseAtomicLevel(cfg.Logging.Level); err != nil {
		add("logging.level", "unknown level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		add("logging.format", "must be json or console, got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled && !identifier.MatchString(cfg.Metrics.Namespace) {
		add("metrics.namespace", "invalid metric namespace %q", cfg.Metrics.Namespace)
	}
	if cfg.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			add("metrics.listen", "must be host:port, got %q", cfg.Metrics.Listen)
		}
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		add("metrics.path", "must start with /, got %q", cfg.Metrics.Path)
	}

	if cfg.Watch.Debounce < 0 {
		add("watch.debounce", "must not be negative")
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
