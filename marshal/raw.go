package marshal

import (
	"fmt"
	"unicode/utf8"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/js-bridge/errors"
)

// MaxStringLen bounds the scan for a string terminator.
const MaxStringLen = 64 << 20

// Raw is one argument slot as it arrives from native code.
type Raw struct {
	Ptr  unsafe.Pointer
	Tag  Tag
	Size int
}

// Policy selects how decoding failures are reported.
type Policy int

const (
	// Lenient degrades a bad slot to undefined and continues.
	Lenient Policy = iota
	// Strict fails the whole call on the first bad slot.
	Strict
)

// ParsePolicy maps "lenient" or "strict" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	default:
		return Lenient, fmt.Errorf("unknown argument policy %q", s)
	}
}

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// FromSlices zips the three parallel native arrays into Raw slots.
// The slices must have equal length; extra entries are ignored.
func FromSlices(ptrs []unsafe.Pointer, tags []int32, sizes []int) []Raw {
	n := min(len(ptrs), len(tags), len(sizes))
	out := make([]Raw, n)
	for i := range n {
		out[i] = Raw{Ptr: ptrs[i], Tag: Tag(tags[i]), Size: sizes[i]}
	}
	return out
}

// Decode converts every slot. Under Lenient it never fails and always
// returns len(raws) arguments; under Strict the first degraded slot is
// returned as an argument decode error.
func Decode(raws []Raw, policy Policy) ([]Arg, error) {
	args := make([]Arg, len(raws))
	for i, r := range raws {
		a := DecodeRaw(r)
		if a.Err != nil {
			if policy == Strict {
				return nil, errors.New(errors.PhaseMarshal, errors.KindArgumentDecode).
					Path(fmt.Sprintf("arg[%d]", i)).
					Value(i).
					Detail("%s slot", r.Tag).
					Cause(a.Err).
					Build()
			}
			Logger().Debug("argument degraded to undefined",
				zap.Int("index", i), zap.Stringer("tag", r.Tag), zap.Error(a.Err))
		}
		args[i] = a
	}
	return args, nil
}

// DecodeRaw converts a single slot. It is total: every input yields an
// Arg, with Err set when the slot degraded to undefined.
func DecodeRaw(r Raw) Arg {
	if !r.Tag.Valid() {
		return degraded(r.Tag, fmt.Errorf("unknown tag %d", int32(r.Tag)))
	}
	if r.Tag == TagNone {
		return Undefined()
	}
	if r.Ptr == nil {
		return degraded(r.Tag, fmt.Errorf("null pointer for %s", r.Tag))
	}

	switch r.Tag {
	case TagString:
		b, ok := readCString(r.Ptr, MaxStringLen)
		if !ok {
			return degraded(r.Tag, fmt.Errorf("string exceeds %d bytes without terminator", MaxStringLen))
		}
		if !utf8.Valid(b) {
			return degraded(r.Tag, errors.InvalidUTF8(errors.PhaseMarshal, nil, b))
		}
		return String(string(b))
	case TagInteger:
		return Int(readInt32(r.Ptr))
	case TagDouble:
		return Double(readFloat64(r.Ptr))
	case TagBool:
		// The pointer value itself is the flag.
		return Bool(uintptr(r.Ptr) != 0)
	case TagBytes:
		if r.Size < 0 {
			return degraded(r.Tag, fmt.Errorf("negative size %d", r.Size))
		}
		return Arg{Tag: TagBytes, Value: readBytes(r.Ptr, r.Size), Defined: true}
	}
	return Undefined()
}

// The read helpers below are the only places native memory is touched.

func readCString(p unsafe.Pointer, limit int) ([]byte, bool) {
	for n := 0; n < limit; n++ {
		if *(*byte)(unsafe.Add(p, n)) == 0 {
			return readBytes(p, n), true
		}
	}
	return nil, false
}

func readInt32(p unsafe.Pointer) int32 {
	return *(*int32)(p)
}

func readFloat64(p unsafe.Pointer) float64 {
	return *(*float64)(p)
}

func readBytes(p unsafe.Pointer, n int) []byte {
	if n == 0 {
		return []byte{}
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(p), n))
	return out
}
