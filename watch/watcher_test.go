package watch

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) Reload(_ context.Context, module string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, module)
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestShouldProcess(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write script", fsnotify.Event{Name: "/a/main.mjs", Op: fsnotify.Write}, true},
		{"create ts", fsnotify.Event{Name: "/a/util.ts", Op: fsnotify.Create}, true},
		{"json", fsnotify.Event{Name: "/a/data.JSON", Op: fsnotify.Write}, true},
		{"chmod only", fsnotify.Event{Name: "/a/main.mjs", Op: fsnotify.Chmod}, false},
		{"other extension", fsnotify.Event{Name: "/a/notes.txt", Op: fsnotify.Write}, false},
		{"hidden", fsnotify.Event{Name: "/a/.main.mjs.swp", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldProcess(tt.event); got != tt.want {
				t.Errorf("shouldProcess = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "main.mjs")
	other := filepath.Join(t.TempDir(), "other.mjs")
	for _, p := range []string{main, other} {
		if err := os.WriteFile(p, []byte("export default {}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}

	w, err := New(30 * time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()
	if err := w.Add("main", main); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Add("other", other); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := w.Modules(); !reflect.DeepEqual(got, []string{"main", "other"}) {
		t.Errorf("Modules = %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	go func() { _ = w.Run(ctx, rec) }()

	// Several writes in a burst.
	lib := filepath.Join(dir, "lib", "util.mjs")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(lib, []byte("export const v = 1;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return len(rec.snapshot()) > 0 })
	time.Sleep(150 * time.Millisecond)
	if got := rec.snapshot(); !reflect.DeepEqual(got, []string{"main"}) {
		t.Errorf("reloads = %v, want one reload of main", got)
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "main.mjs")
	if err := os.WriteFile(main, []byte("export default {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(20 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Add("main", main); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	go func() { _ = w.Run(ctx, rec) }()

	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("unexpected reloads %v", got)
	}
}

func TestWatcher_RunTwice(t *testing.T) {
	w, err := New(0)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx, &recorder{})
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	if err := w.Run(ctx, &recorder{}); err == nil {
		t.Error("second Run should fail")
	}
	cancel()
	<-done
}

func TestWatcher_SkipsPackagesDir(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		skipped string
		watched string
	}{
		{"default", nil, "node_modules", "deps"},
		{"configured", []Option{WithPackagesDir("deps")}, "deps", "node_modules"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for _, dir := range []string{"src", ".cache", "node_modules/pkg", "deps/pkg"} {
				if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
					t.Fatal(err)
				}
			}
			main := filepath.Join(root, "main.mjs")
			if err := os.WriteFile(main, []byte("export default {}"), 0o644); err != nil {
				t.Fatal(err)
			}

			w, err := New(0, tt.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer w.Close()
			if err := w.Add("main", main); err != nil {
				t.Fatalf("Add: %v", err)
			}

			w.mu.Lock()
			defer w.mu.Unlock()
			for _, want := range []string{root, filepath.Join(root, "src"), filepath.Join(root, tt.watched)} {
				if !w.dirs[want] {
					t.Errorf("%s not watched", want)
				}
			}
			for _, skip := range []string{filepath.Join(root, ".cache"), filepath.Join(root, tt.skipped), filepath.Join(root, tt.skipped, "pkg")} {
				if w.dirs[skip] {
					t.Errorf("%s should be skipped", skip)
				}
			}
		})
	}
}
