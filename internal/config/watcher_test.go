package config

// Tests for the config watcher: change detection through fsnotify and
// polling, coalescing, unchanged rewrites, and shutdown.

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tools.zach/dev/powerhook/internal/atomicfile"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// replace rewrites path the way Save does and moves its mtime forward so
// polling sees the change even on coarse-grained filesystems.
func replace(t *testing.T, path, content string) {
	t.Helper()
	if err := atomicfile.Write(path, []byte(content), 0o644); err != nil {
		t.Fatalf("atomicfile.Write: %v", err)
	}
	bump(t, path)
}

var bumps int

func bump(t *testing.T, path string) {
	t.Helper()
	bumps++
	future := time.Now().Add(time.Duration(bumps) * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
}

func expectEvent(t *testing.T, w *Watcher, within time.Duration) {
	t.Helper()
	select {
	case <-w.Events():
	case <-time.After(within):
		t.Fatal("timed out waiting for config change")
	}
}

func expectQuiet(t *testing.T, w *Watcher, d time.Duration) {
	t.Helper()
	select {
	case <-w.Events():
		t.Fatal("unexpected config change event")
	case <-time.After(d):
	}
}

func pollingWatcher(t *testing.T, path string) *Watcher {
	t.Helper()
	w, err := newWatcher(path, quietLogger(), watchOptions{interval: 20 * time.Millisecond, pollOnly: true})
	if err != nil {
		t.Fatalf("newWatcher: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

// ///////////////////////////////////////////////
// Construction
// ///////////////////////////////////////////////

func TestNewWatcherDirectoryErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing directory", filepath.Join(dir, "missing", "config.toml")},
		{"parent is a file", filepath.Join(file, "config.toml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWatcher(tt.path, quietLogger()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCloseIdempotent(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "config.toml"), quietLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// ///////////////////////////////////////////////
// Either Mode
// ///////////////////////////////////////////////

func TestWatcherReportsReplace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("version = 1\n"), 0o644)

	w, err := NewWatcher(path, quietLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(50 * time.Millisecond)
	replace(t, path, "version = 1\n[log]\nlevel = \"debug\"\n")
	expectEvent(t, w, 5*time.Second)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}
	dir := t.TempDir()

	w, err := NewWatcher(filepath.Join(dir, "config.toml"), quietLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	os.WriteFile(filepath.Join(dir, "state.json"), []byte(`{}`), 0o644)
	expectQuiet(t, w, 300*time.Millisecond)
}

func TestWatcherCoalescesBurst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("version = 1\n"), 0o644)

	w, err := newWatcher(path, quietLogger(), watchOptions{interval: time.Hour, settle: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("newWatcher: %v", err)
	}
	defer w.Close()
	if w.Polling() {
		t.Skip("fsnotify unavailable")
	}

	for i := range 5 {
		content := "version = 1\n# edit " + string(rune('a'+i)) + "\n"
		if err := atomicfile.Write(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	expectEvent(t, w, 5*time.Second)
	expectQuiet(t, w, 400*time.Millisecond)
}

// ///////////////////////////////////////////////
// Polling
// ///////////////////////////////////////////////

func TestPollDetectsModification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("version = 1\n"), 0o644)
	w := pollingWatcher(t, path)

	if !w.Polling() {
		t.Error("Polling() = false, want true")
	}
	replace(t, path, "version = 1\n[daemon]\nwatch_config = false\n")
	expectEvent(t, w, 3*time.Second)
}

func TestPollDetectsCreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	w := pollingWatcher(t, path)

	replace(t, path, "version = 1\n")
	expectEvent(t, w, 3*time.Second)
}

func TestPollIgnoresIdenticalRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("version = 1\n"), 0o644)
	w := pollingWatcher(t, path)

	replace(t, path, "version = 1\n")
	expectQuiet(t, w, 200*time.Millisecond)

	replace(t, path, "version = 1\n# changed\n")
	expectEvent(t, w, 3*time.Second)
}

func TestPollStopsOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("version = 1\n"), 0o644)
	w := pollingWatcher(t, path)

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	replace(t, path, "version = 1\n# after close\n")
	expectQuiet(t, w, 200*time.Millisecond)
}
