package resolver

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/js-bridge/errors"
)

const (
	DefaultPackagesDir = "node_modules"
	DefaultMainFile    = "index.mjs"
	ManifestFile       = "package.json"
)

// probeExtensions are tried in order when a package subpath has no
// extension on disk.
var probeExtensions = []string{"", ".mjs", ".js"}

// Resolver turns import specifiers into absolute module paths.
// It only reads the filesystem; it never installs anything.
type Resolver struct {
	packagesDir string
	mainFields  []string
	defaultMain string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPackagesDir sets the directory name searched for bare specifiers.
func WithPackagesDir(name string) Option {
	return func(r *Resolver) {
		if name != "" {
			r.packagesDir = name
		}
	}
}

// WithMainFields sets the manifest fields consulted, in order, for the
// package entry point.
func WithMainFields(fields ...string) Option {
	return func(r *Resolver) {
		if len(fields) > 0 {
			r.mainFields = append([]string(nil), fields...)
		}
	}
}

// WithDefaultMain sets the entry file used when no main field is present.
func WithDefaultMain(file string) Option {
	return func(r *Resolver) {
		if file != "" {
			r.defaultMain = file
		}
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		packagesDir: DefaultPackagesDir,
		mainFields:  []string{"module"},
		defaultMain: DefaultMainFile,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PackagesDir returns the configured package directory name.
func (r *Resolver) PackagesDir() string {
	return r.packagesDir
}

// IsFileImport reports whether spec addresses a file directly rather
// than a package.
func IsFileImport(spec string) bool {
	return strings.HasPrefix(spec, ".") ||
		strings.HasPrefix(spec, "/") ||
		strings.HasPrefix(spec, "file://")
}

// Resolve returns the absolute path for spec imported from referrer.
// The referrer may be an absolute path, a file:// URL, or empty for the
// working directory.
func (r *Resolver) Resolve(spec, referrer string) (string, error) {
	if spec == "" {
		return "", errors.Resolution(spec, referrer, "empty specifier", nil)
	}

	baseDir, err := referrerDir(referrer)
	if err != nil {
		return "", errors.Resolution(spec, referrer, "invalid referrer", err)
	}

	if IsFileImport(spec) {
		return resolveFile(spec, baseDir)
	}
	return r.resolvePackage(spec, referrer, baseDir)
}

func resolveFile(spec, baseDir string) (string, error) {
	if strings.HasPrefix(spec, "file://") {
		p, err := fileURLPath(spec)
		if err != nil {
			return "", errors.Resolution(spec, baseDir, "invalid file URL", err)
		}
		return filepath.Clean(p), nil
	}
	if filepath.IsAbs(spec) {
		return filepath.Clean(spec), nil
	}
	return filepath.Join(baseDir, spec), nil
}

func (r *Resolver) resolvePackage(spec, referrer, baseDir string) (string, error) {
	name, subpath := splitPackage(spec)
	if name == "" {
		return "", errors.Resolution(spec, referrer, "malformed package specifier", nil)
	}

	pkgDir, ok := r.findPackageDir(baseDir, name)
	if !ok {
		return "", errors.Resolution(spec, referrer,
			"package "+name+" not found in any "+r.packagesDir+" directory", nil)
	}

	if subpath != "" {
		return probe(spec, referrer, filepath.Join(pkgDir, subpath))
	}

	manifestPath := filepath.Join(pkgDir, ManifestFile)
	m, err := readManifest(manifestPath)
	if err != nil {
		return "", errors.Resolution(spec, referrer, "cannot read manifest "+manifestPath, err)
	}

	main := r.defaultMain
	for _, field := range r.mainFields {
		if v, ok := m[field].(string); ok && v != "" {
			main = v
			break
		}
	}

	full := filepath.Join(pkgDir, main)
	if !isFile(full) {
		return "", errors.Resolution(spec, referrer, "main file "+full+" does not exist", nil)
	}
	return full, nil
}

// findPackageDir walks from dir to the filesystem root and returns the
// nearest <ancestor>/<packagesDir>/<name> directory.
func (r *Resolver) findPackageDir(dir, name string) (string, bool) {
	for {
		candidate := filepath.Join(dir, r.packagesDir, name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			Logger().Debug("package found", zap.String("name", name), zap.String("dir", candidate))
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func probe(spec, referrer, base string) (string, error) {
	for _, ext := range probeExtensions {
		if p := base + ext; isFile(p) {
			return p, nil
		}
	}
	return "", errors.Resolution(spec, referrer, "file "+base+" does not exist", nil)
}

// splitPackage separates "name/sub/path" into the package name and the
// remaining subpath. Scoped names keep their first two segments.
func splitPackage(spec string) (name, subpath string) {
	parts := strings.Split(spec, "/")
	n := 1
	if strings.HasPrefix(spec, "@") {
		if len(parts) < 2 || parts[1] == "" {
			return "", ""
		}
		n = 2
	}
	if parts[0] == "" || len(parts) < n {
		return "", ""
	}
	return strings.Join(parts[:n], "/"), strings.Join(parts[n:], "/")
}

func readManifest(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func referrerDir(referrer string) (string, error) {
	if referrer == "" {
		return os.Getwd()
	}
	p := referrer
	if strings.HasPrefix(referrer, "file://") {
		var err error
		if p, err = fileURLPath(referrer); err != nil {
			return "", err
		}
	}
	if !filepath.IsAbs(p) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		p = abs
	}
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		return p, nil
	}
	return filepath.Dir(p), nil
}

func fileURLPath(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return filepath.FromSlash(u.Path), nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
