package resolver

import (
	"path/filepath"
	"strings"

	"github.com/wippyai/js-bridge/errors"
)

// ModuleType is the kind of content a resolved module holds.
type ModuleType int

const (
	TypeUnspecified ModuleType = iota
	TypeScript
	TypeJSON
	TypeWasm
)

func (t ModuleType) String() string {
	switch t {
	case TypeScript:
		return "script"
	case TypeJSON:
		return "json"
	case TypeWasm:
		return "wasm"
	default:
		return "unspecified"
	}
}

// ParseType maps an import attribute value ("json", "wasm", ...) to a
// ModuleType. Unknown values are TypeUnspecified.
func ParseType(s string) ModuleType {
	switch strings.ToLower(s) {
	case "json":
		return TypeJSON
	case "wasm", "binary":
		return TypeWasm
	case "script", "javascript", "js":
		return TypeScript
	default:
		return TypeUnspecified
	}
}

// TypeOf derives the module type from the file extension.
func TypeOf(path string) ModuleType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return TypeJSON
	case ".wasm":
		return TypeWasm
	default:
		return TypeScript
	}
}

// CheckType returns the derived type of path, or a type mismatch error
// when requested is set and disagrees with it.
func CheckType(path string, requested ModuleType) (ModuleType, error) {
	derived := TypeOf(path)
	if requested != TypeUnspecified && requested != derived {
		return derived, errors.TypeMismatch(path, derived.String(), requested.String())
	}
	return derived, nil
}
