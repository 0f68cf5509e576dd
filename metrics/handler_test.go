package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestHandler(t *testing.T) {
	c := NewCollector("", nil)
	c.Registration(true)
	c.Invocation("sdk", false, 3*time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	code, body := scrape(t, srv.URL)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	for _, want := range []string{
		`jsbridge_registrations_total{result="ok"} 1`,
		`jsbridge_invocations_total{module="sdk",result="error"} 1`,
		"jsbridge_invocation_duration_seconds_bucket",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q:\n%s", want, body)
		}
	}
}

func TestHandler_NilCollector(t *testing.T) {
	var c *Collector
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	if code, _ := scrape(t, srv.URL); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestServe(t *testing.T) {
	c := NewCollector("bridge", nil)
	c.MessagePosted("binary", true)

	s, err := c.Serve("127.0.0.1:0", "")
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}

	code, body := scrape(t, "http://"+s.Addr()+DefaultPath)
	if code != http.StatusOK || !strings.Contains(body, `bridge_messages_posted_total{kind="binary",result="ok"} 1`) {
		t.Errorf("scrape = %d\n%s", code, body)
	}
	if code, _ := scrape(t, "http://"+s.Addr()+"/other"); code != http.StatusNotFound {
		t.Errorf("other path status = %d", code)
	}

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := http.Get("http://" + s.Addr() + DefaultPath); err == nil {
		t.Error("endpoint still serving after Close")
	}
	var none *Server
	if err := none.Close(context.Background()); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}
