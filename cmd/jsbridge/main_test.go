package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/js-bridge/marshal"
	"github.com/wippyai/js-bridge/message"
)

func TestArgList(t *testing.T) {
	var a argList
	for _, v := range []string{"s:hello", "i:4"} {
		if err := a.Set(v); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if len(a) != 2 || a.String() != "s:hello i:4" {
		t.Errorf("argList = %q", a.String())
	}
}

func TestModuleName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"sdk.mjs", "sdk"},
		{"/srv/scripts/payments.ts", "payments"},
		{"noext", "noext"},
		{"dir/archive.tar.js", "archive.tar"},
	}
	for _, tt := range tests {
		if got := moduleName(tt.path); got != tt.want {
			t.Errorf("moduleName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFormatMessage(t *testing.T) {
	structured, err := message.NewStructured(3, "ok")
	if err != nil {
		t.Fatalf("NewStructured: %v", err)
	}
	env, err := message.NewEnvelope(5, message.Envelope{Data: []byte("part")})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	failed, err := message.NewEnvelope(6, message.Envelope{Error: "boom"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	tests := []struct {
		name string
		msg  message.Message
		want string
	}{
		{"string", message.NewString("ping"), "message: ping"},
		{"structured", structured, `message #3: "ok"`},
		{"chunk", env, `message #5: chunk "part"`},
		{"error", failed, "message #6: error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatMessage(tt.msg); got != tt.want {
				t.Errorf("formatMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "undefined"},
		{[]byte{0xca, 0xfe}, "0xcafe"},
		{"x", `"x"`},
		{int64(7), "7"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greeter.mjs")
	src := `export default {
	init(greeting) { return { greeting }; },
	functions: {
		hello(state, name) {
			send_to_port("called " + name);
			return state.greeting + ", " + name;
		},
	},
};`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	var log messageLog
	opts := options{modulePath: path, name: moduleName(path), initArgs: argList{"s:hi"}}
	s, err := openSession(context.Background(), opts, &log)
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}

	got, err := s.engine.Invoke(context.Background(), opts.name, "hello", 0, []marshal.Arg{marshal.String("bob")})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "hi, bob" {
		t.Errorf("hello = %v", got)
	}
	s.close()

	lines := log.take()
	if len(lines) != 1 || !strings.Contains(lines[0], "called bob") {
		t.Errorf("posted lines = %q", lines)
	}
}
