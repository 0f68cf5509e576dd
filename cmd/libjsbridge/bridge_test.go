package main

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"unsafe"

	"github.com/wippyai/js-bridge/config"
	"github.com/wippyai/js-bridge/engine"
	"github.com/wippyai/js-bridge/errors"
	"github.com/wippyai/js-bridge/marshal"
	"github.com/wippyai/js-bridge/message"
)

var hostAPI = engine.APIVersion{Major: engine.APIMajor, Minor: engine.APIMinor}

const echoModule = `
export default {
	init(prefix) { return { prefix }; },
	functions: {
		echo(state, text, id) {
			return send_to_host(id, state.prefix + text);
		},
	},
}`

func testBridge(t *testing.T) *bridge {
	t.Helper()
	b := newBridge()
	b.loadCfg = func() (*config.Config, error) {
		cfg := config.Default()
		cfg.Logging.Level = "error"
		return cfg, nil
	}
	t.Cleanup(b.dispose)
	return b
}

func TestBridge_Lifecycle(t *testing.T) {
	b := testBridge(t)

	if err := b.call("m", "f", 0, nil); !errors.IsKind(err, errors.KindNotInitialized) {
		t.Errorf("call before init: %v", err)
	}
	if b.isRegistered("m") {
		t.Error("isRegistered before init")
	}

	if err := b.init(engine.APIVersion{Major: engine.APIMajor + 1}, nil); !errors.IsKind(err, errors.KindVersionMismatch) {
		t.Errorf("mismatch: %v", err)
	}
	if err := b.init(hostAPI, nil); err != nil {
		t.Fatalf("init after failed handshake: %v", err)
	}
	if err := b.init(hostAPI, nil); !errors.IsKind(err, errors.KindAlreadyInitialized) {
		t.Errorf("second init: %v", err)
	}

	b.dispose()
	b.dispose()
	if err := b.register("m", echoModule, nil); !errors.IsKind(err, errors.KindNotInitialized) {
		t.Errorf("register after dispose: %v", err)
	}

	if err := b.init(hostAPI, nil); err != nil {
		t.Fatalf("re-init after dispose: %v", err)
	}
	if b.table.Len() != 1 {
		t.Errorf("sessions = %d", b.table.Len())
	}
}

func TestBridge_RegisterAndCall(t *testing.T) {
	b := testBridge(t)
	port := message.NewChanPort(4)
	if err := b.init(hostAPI, port); err != nil {
		t.Fatal(err)
	}

	prefix := []byte("> \x00")
	text := []byte("hi\x00")
	reg := marshal.FromSlices(
		[]unsafe.Pointer{unsafe.Pointer(&prefix[0])},
		[]int32{int32(marshal.TagString)},
		[]int{len(prefix)},
	)
	if err := b.register("echo", echoModule, reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !b.isRegistered("echo") {
		t.Fatal("echo should be registered")
	}

	args := marshal.FromSlices(
		[]unsafe.Pointer{unsafe.Pointer(&text[0])},
		[]int32{int32(marshal.TagString)},
		[]int{len(text)},
	)
	if err := b.call("echo", "echo", 12, args); err != nil {
		t.Fatalf("call: %v", err)
	}

	msgs := port.Drain()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d", len(msgs))
	}
	s, err := message.DecodeStructured(msgs[0].Data)
	if err != nil {
		t.Fatal(err)
	}
	if s.CallbackID != 12 || s.Data != "> hi" {
		t.Errorf("structured = %+v", s)
	}

	if err := b.call("echo", "missing", 1, nil); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("missing function: %v", err)
	}
	if err := b.register("bad", `export const nothing = 1;`, nil); !errors.IsKind(err, errors.KindModuleContract) {
		t.Errorf("contract: %v", err)
	}
}

func TestBridge_MetricsEndpoint(t *testing.T) {
	b := newBridge()
	b.loadCfg = func() (*config.Config, error) {
		cfg := config.Default()
		cfg.Logging.Level = "error"
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = "127.0.0.1:0"
		return cfg, nil
	}
	t.Cleanup(b.dispose)

	if err := b.init(hostAPI, nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := b.register("echo", echoModule, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if b.metrics == nil {
		t.Fatal("metrics endpoint not started")
	}
	url := "http://" + b.metrics.Addr() + "/metrics"

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `jsbridge_registrations_total{result="ok"} 1`) {
		t.Errorf("scrape body:\n%s", body)
	}

	b.dispose()
	if b.metrics != nil {
		t.Error("dispose should stop the metrics endpoint")
	}
	if _, err := http.Get(url); err == nil {
		t.Error("endpoint still serving after dispose")
	}
}
