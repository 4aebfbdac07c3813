package autosave

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func startWatcher(t *testing.T, dir string, opts WatcherOptions, cb func(Event)) *Watcher {
	t.Helper()
	w, err := NewWatcher(dir, opts, cb)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return w
}

func TestWatcherStartsDirty(t *testing.T) {
	w := startWatcher(t, t.TempDir(), WatcherOptions{}, nil)

	if !w.TakeDirty() {
		t.Error("first TakeDirty() = false, want true")
	}
	if w.TakeDirty() {
		t.Error("second TakeDirty() = true, want false")
	}
	w.MarkDirty()
	if !w.TakeDirty() {
		t.Error("TakeDirty() after MarkDirty = false, want true")
	}
}

func TestWatcherMarksDirtyAndDebounces(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var events []Event
	w := startWatcher(t, dir, WatcherOptions{Debounce: 50 * time.Millisecond}, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	w.TakeDirty()

	path := filepath.Join(dir, "a.txt")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(strings.Repeat("x", i+1)), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0
	})
	if !w.TakeDirty() {
		t.Error("TakeDirty() = false after write")
	}

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	for _, e := range events {
		if e.Path != path {
			t.Errorf("event path = %s, want %s", e.Path, path)
		}
	}
	if len(events) > 2 {
		t.Errorf("got %d events for one burst of writes, want debounced", len(events))
	}
}

func TestWatcherSkipsTempAndFilteredPaths(t *testing.T) {
	dir := t.TempDir()
	storage := filepath.Join(dir, ".guardian")

	w := startWatcher(t, dir, WatcherOptions{
		Debounce: 10 * time.Millisecond,
		Skip:     func(p string) bool { return p == storage },
	}, nil)
	w.TakeDirty()

	if err := os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("t"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.Mkdir(storage, 0755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if w.TakeDirty() {
		t.Error("skipped paths marked the watcher dirty")
	}
}

func TestWatcherStartTwiceAndClose(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), WatcherOptions{}, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("second Start() succeeded")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("Start() after Close succeeded")
	}
}

func TestNewWatcherMissingDir(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), WatcherOptions{}, nil); err == nil {
		t.Error("NewWatcher() on missing dir succeeded")
	}
}
