package autosave

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"guardian/internal/guardian"
)

// DefaultDebounce is how long a path must stay quiet before its event is delivered.
const DefaultDebounce = 250 * time.Millisecond

// EventType is the kind of change observed on a path.
type EventType string

const (
	EventCreate EventType = "create"
	EventModify EventType = "modify"
	EventDelete EventType = "delete"
	EventRename EventType = "rename"
)

// Event is a debounced filesystem change.
type Event struct {
	Path string
	Type EventType
}

// WatcherOptions configures a Watcher. The zero value is usable.
type WatcherOptions struct {
	Debounce time.Duration
	// Skip reports paths whose events should be dropped. Temp files left by
	// atomic writes are always dropped.
	Skip   func(path string) bool
	Logger guardian.Logger
}

// Watcher observes the top level of a directory and remembers whether
// anything changed since the last call to TakeDirty.
type Watcher struct {
	root     string
	debounce time.Duration
	skip     func(string) bool
	logger   guardian.Logger
	callback func(Event)

	watcher *fsnotify.Watcher
	done    chan struct{}
	dirty   atomic.Bool

	mu      sync.Mutex
	started bool
	closed  bool

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// NewWatcher creates a Watcher for root. callback may be nil.
// A new Watcher starts dirty so the first autosave always runs.
func NewWatcher(root string, opts WatcherOptions, callback func(Event)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fw.Add(root); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = guardian.NewNopLogger()
	}

	w := &Watcher{
		root:     root,
		debounce: debounce,
		skip:     opts.Skip,
		logger:   logger,
		callback: callback,
		watcher:  fw,
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}
	w.dirty.Store(true)
	return w, nil
}

// Start begins delivering events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher is closed")
	}
	if w.started {
		return fmt.Errorf("watcher already started")
	}
	w.started = true

	go w.watch()
	return nil
}

// Close stops the watcher and drops pending events.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.started {
		close(w.done)
	}

	w.timersMu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.timersMu.Unlock()

	return w.watcher.Close()
}

// TakeDirty reports whether a change was seen and resets the flag.
func (w *Watcher) TakeDirty() bool {
	return w.dirty.Swap(false)
}

// MarkDirty sets the flag again, used when a save attempt fails.
func (w *Watcher) MarkDirty() {
	w.dirty.Store(true)
}

func (w *Watcher) watch() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "path", w.root, "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	var kind EventType
	switch {
	case ev.Has(fsnotify.Create):
		kind = EventCreate
	case ev.Has(fsnotify.Write):
		kind = EventModify
	case ev.Has(fsnotify.Remove):
		kind = EventDelete
	case ev.Has(fsnotify.Rename):
		kind = EventRename
	default:
		return
	}

	if strings.HasPrefix(filepath.Base(ev.Name), ".tmp-") {
		return
	}
	if w.skip != nil && w.skip(ev.Name) {
		return
	}

	w.dirty.Store(true)
	w.debounceEvent(Event{Path: ev.Name, Type: kind})
}

func (w *Watcher) debounceEvent(e Event) {
	if w.callback == nil {
		return
	}

	w.timersMu.Lock()
	defer w.timersMu.Unlock()

	if t, ok := w.timers[e.Path]; ok {
		t.Stop()
	}
	w.timers[e.Path] = time.AfterFunc(w.debounce, func() {
		w.timersMu.Lock()
		delete(w.timers, e.Path)
		w.timersMu.Unlock()

		w.callback(e)
	})
}
