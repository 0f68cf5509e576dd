package marshal

import (
	"fmt"
	"math"
)

// Tag identifies the native representation of one argument slot.
type Tag int32

const (
	TagNone    Tag = 0
	TagString  Tag = 1
	TagInteger Tag = 2
	TagDouble  Tag = 3
	TagBool    Tag = 4
	TagBytes   Tag = 5
)

func (t Tag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagString:
		return "string"
	case TagInteger:
		return "integer"
	case TagDouble:
		return "double"
	case TagBool:
		return "bool"
	case TagBytes:
		return "bytes"
	default:
		return fmt.Sprintf("tag(%d)", int32(t))
	}
}

// Valid reports whether t is one of the known tags.
func (t Tag) Valid() bool {
	return t >= TagNone && t <= TagBytes
}

// Arg is a decoded argument. An Arg that is not Defined is passed to
// scripts as undefined; Err records why a slot degraded.
type Arg struct {
	Value   any
	Err     error
	Tag     Tag
	Defined bool
}

// Undefined returns an argument that maps to the engine's undefined.
func Undefined() Arg {
	return Arg{Tag: TagNone}
}

// String returns a string argument.
func String(s string) Arg {
	return Arg{Tag: TagString, Value: s, Defined: true}
}

// Int returns a 32-bit integer argument.
func Int(v int32) Arg {
	return Arg{Tag: TagInteger, Value: v, Defined: true}
}

// Double returns a float64 argument.
func Double(v float64) Arg {
	return Arg{Tag: TagDouble, Value: v, Defined: true}
}

// Bool returns a boolean argument.
func Bool(v bool) Arg {
	return Arg{Tag: TagBool, Value: v, Defined: true}
}

// Bytes returns a binary argument holding a private copy of b.
func Bytes(b []byte) Arg {
	return Arg{Tag: TagBytes, Value: append([]byte{}, b...), Defined: true}
}

func degraded(tag Tag, err error) Arg {
	return Arg{Tag: tag, Err: err}
}

// GoString renders the argument for logs and the CLI.
func (a Arg) GoString() string {
	if !a.Defined {
		return "undefined"
	}
	switch v := a.Value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case []byte:
		return fmt.Sprintf("bytes[%d]", len(v))
	case float64:
		if math.IsNaN(v) {
			return "NaN"
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
