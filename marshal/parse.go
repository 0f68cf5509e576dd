package marshal

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ParseArg parses the textual "T:V" form used by the command line, where
// T is one of s, i, d, b, x (hex bytes) or n (none).
func ParseArg(s string) (Arg, error) {
	kind, val, ok := strings.Cut(s, ":")
	if !ok {
		if s == "n" {
			return Undefined(), nil
		}
		return Arg{}, fmt.Errorf("argument %q: want T:V", s)
	}
	switch kind {
	case "s":
		return String(val), nil
	case "i":
		n, err := strconv.ParseInt(val, 10, 32)
		if err != nil {
			return Arg{}, fmt.Errorf("argument %q: %w", s, err)
		}
		return Int(int32(n)), nil
	case "d":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return Arg{}, fmt.Errorf("argument %q: %w", s, err)
		}
		return Double(f), nil
	case "b":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return Arg{}, fmt.Errorf("argument %q: %w", s, err)
		}
		return Bool(b), nil
	case "x":
		b, err := hex.DecodeString(val)
		if err != nil {
			return Arg{}, fmt.Errorf("argument %q: %w", s, err)
		}
		return Bytes(b), nil
	case "n":
		return Undefined(), nil
	default:
		return Arg{}, fmt.Errorf("argument %q: unknown type %q", s, kind)
	}
}

// ParseArgs parses each entry with ParseArg.
func ParseArgs(list []string) ([]Arg, error) {
	out := make([]Arg, 0, len(list))
	for _, s := range list {
		a, err := ParseArg(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
