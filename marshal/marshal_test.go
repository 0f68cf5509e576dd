package marshal

import (
	"bytes"
	"math"
	"testing"
	"unsafe"

	"github.com/dop251/goja"

	"github.com/wippyai/js-bridge/errors"
)

func cstr(s string) unsafe.Pointer {
	b := append([]byte(s), 0)
	return unsafe.Pointer(&b[0])
}

func TestDecodeRaw(t *testing.T) {
	i := int32(-42)
	f := 3.25
	flag := byte(1)
	payload := []byte{1, 2, 3, 4}

	tests := []struct {
		name      string
		raw       Raw
		defined   bool
		want      any
		wantError bool
	}{
		{"none", Raw{Tag: TagNone}, false, nil, false},
		{"none ignores pointer", Raw{Tag: TagNone, Ptr: cstr("x")}, false, nil, false},
		{"string", Raw{Tag: TagString, Ptr: cstr("héllo")}, true, "héllo", false},
		{"empty string", Raw{Tag: TagString, Ptr: cstr("")}, true, "", false},
		{"invalid utf8", Raw{Tag: TagString, Ptr: cstr("\xff\xfe")}, false, nil, true},
		{"integer", Raw{Tag: TagInteger, Ptr: unsafe.Pointer(&i)}, true, int32(-42), false},
		{"double", Raw{Tag: TagDouble, Ptr: unsafe.Pointer(&f)}, true, 3.25, false},
		{"bool true", Raw{Tag: TagBool, Ptr: unsafe.Pointer(&flag)}, true, true, false},
		{"bytes", Raw{Tag: TagBytes, Ptr: unsafe.Pointer(&payload[0]), Size: 4}, true, []byte{1, 2, 3, 4}, false},
		{"bytes zero size", Raw{Tag: TagBytes, Ptr: unsafe.Pointer(&payload[0])}, true, []byte{}, false},
		{"bytes negative size", Raw{Tag: TagBytes, Ptr: unsafe.Pointer(&payload[0]), Size: -1}, false, nil, true},
		{"unknown tag", Raw{Tag: 99, Ptr: cstr("x")}, false, nil, true},
		{"negative tag", Raw{Tag: -1, Ptr: cstr("x")}, false, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := DecodeRaw(tt.raw)
			if a.Defined != tt.defined {
				t.Fatalf("Defined = %v, want %v", a.Defined, tt.defined)
			}
			if (a.Err != nil) != tt.wantError {
				t.Fatalf("Err = %v, wantError %v", a.Err, tt.wantError)
			}
			if !tt.defined {
				return
			}
			if b, ok := tt.want.([]byte); ok {
				if !bytes.Equal(a.Value.([]byte), b) {
					t.Errorf("Value = %v, want %v", a.Value, b)
				}
				return
			}
			if a.Value != tt.want {
				t.Errorf("Value = %#v, want %#v", a.Value, tt.want)
			}
		})
	}
}

func TestDecodeRaw_NullPointerIsUndefined(t *testing.T) {
	for _, tag := range []Tag{TagString, TagInteger, TagDouble, TagBool, TagBytes} {
		a := DecodeRaw(Raw{Tag: tag, Size: 8})
		if a.Defined {
			t.Errorf("%s: null pointer should be undefined", tag)
		}
		if a.Err == nil {
			t.Errorf("%s: missing degrade reason", tag)
		}
	}
}

func TestDecodeRaw_BytesAreCopied(t *testing.T) {
	src := []byte{9, 9, 9}
	a := DecodeRaw(Raw{Tag: TagBytes, Ptr: unsafe.Pointer(&src[0]), Size: 3})
	src[0] = 0
	if a.Value.([]byte)[0] != 9 {
		t.Error("decoded bytes alias native memory")
	}
}

func TestDecode_MalformedIntegerDoesNotAbort(t *testing.T) {
	// "42" as text, read as a 4-byte integer.
	text := []byte("42\x00\x00")
	s := []byte("after\x00")
	raws := []Raw{
		{Tag: TagInteger, Ptr: unsafe.Pointer(&text[0])},
		{Tag: TagString, Ptr: unsafe.Pointer(&s[0])},
	}
	args, err := Decode(raws, Lenient)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(args) != 2 {
		t.Fatalf("len = %d", len(args))
	}
	if _, ok := args[0].Value.(int32); !ok {
		t.Errorf("slot 0 = %#v, want an int32", args[0].Value)
	}
	if args[1].Value != "after" {
		t.Errorf("slot 1 = %#v", args[1].Value)
	}
}

func TestDecode_Policy(t *testing.T) {
	raws := []Raw{
		{Tag: TagString, Ptr: cstr("ok")},
		{Tag: TagInteger},
		{Tag: TagString, Ptr: cstr("tail")},
	}

	args, err := Decode(raws, Lenient)
	if err != nil {
		t.Fatalf("lenient: %v", err)
	}
	if args[1].Defined || args[2].Value != "tail" {
		t.Errorf("lenient decode = %+v", args)
	}

	_, err = Decode(raws, Strict)
	if !errors.IsKind(err, errors.KindArgumentDecode) {
		t.Fatalf("strict err = %v", err)
	}
}

func TestFromSlices(t *testing.T) {
	i := int32(7)
	raws := FromSlices(
		[]unsafe.Pointer{cstr("a"), unsafe.Pointer(&i)},
		[]int32{1, 2, 3},
		[]int{0, 4},
	)
	if len(raws) != 2 {
		t.Fatalf("len = %d", len(raws))
	}
	if raws[1].Tag != TagInteger || raws[1].Size != 4 {
		t.Errorf("raws[1] = %+v", raws[1])
	}
}

func TestParsePolicy(t *testing.T) {
	if p, _ := ParsePolicy("strict"); p != Strict {
		t.Error("strict")
	}
	if p, _ := ParsePolicy(""); p != Lenient {
		t.Error("default")
	}
	if _, err := ParsePolicy("loose"); err == nil {
		t.Error("expected error")
	}
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		in      string
		want    any
		defined bool
		wantErr bool
	}{
		{"s:hello", "hello", true, false},
		{"s:", "", true, false},
		{"i:-12", int32(-12), true, false},
		{"d:1.5", 1.5, true, false},
		{"b:true", true, true, false},
		{"n", nil, false, false},
		{"n:", nil, false, false},
		{"i:notanint", nil, false, true},
		{"q:x", nil, false, true},
		{"plain", nil, false, true},
	}
	for _, tt := range tests {
		a, err := ParseArg(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseArg(%q) err = %v", tt.in, err)
			continue
		}
		if err != nil {
			continue
		}
		if a.Defined != tt.defined || a.Value != tt.want {
			t.Errorf("ParseArg(%q) = %#v", tt.in, a)
		}
	}

	a, err := ParseArg("x:0a0b")
	if err != nil || !bytes.Equal(a.Value.([]byte), []byte{10, 11}) {
		t.Errorf("hex arg = %#v, %v", a, err)
	}
}

func TestInvocation(t *testing.T) {
	vm := goja.New()
	state := vm.NewObject()
	_ = state.Set("count", 1)

	args := []Arg{String("x"), Int(5), Undefined(), Bytes([]byte{1, 2}), Double(math.Pi), Bool(false)}
	vals := Invocation(vm, state, args, 77)
	if len(vals) != len(args)+2 {
		t.Fatalf("len = %d", len(vals))
	}
	if vals[0] != state {
		t.Error("state must come first")
	}
	if vals[1].String() != "x" || vals[2].ToInteger() != 5 {
		t.Errorf("positional args wrong: %v %v", vals[1], vals[2])
	}
	if !goja.IsUndefined(vals[3]) {
		t.Errorf("slot 3 = %v, want undefined", vals[3])
	}
	ab, ok := vals[4].Export().(goja.ArrayBuffer)
	if !ok || !bytes.Equal(ab.Bytes(), []byte{1, 2}) {
		t.Errorf("slot 4 = %#v, want ArrayBuffer", vals[4].Export())
	}
	if vals[len(vals)-1].ToInteger() != 77 {
		t.Errorf("correlation id = %v", vals[len(vals)-1])
	}

	if got := Invocation(vm, nil, nil, 1); !goja.IsUndefined(got[0]) {
		t.Error("nil state should become undefined")
	}
}
