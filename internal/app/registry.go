package app

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"guardian/internal/guardian"
)

// OpenFunc constructs the Manager for a storage directory. The optional
// closer holds resources owned by the Manager's collaborators, such as its
// log file, and is closed after the Manager.
type OpenFunc func(storageDir string) (*guardian.Manager, io.Closer, error)

// Registry keeps one Manager per storage directory so that every caller in
// the process working on the same workspace shares the same in-memory state.
// Managers are built lazily on first Acquire and closed on the last Release.
// The registry lock only guards the map; construction happens under the
// entry's own lock, so unrelated workspaces never wait on each other.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	mu     sync.Mutex
	mgr    *guardian.Manager
	closer io.Closer
	refs   int
}

// close shuts the Manager and then its closer. The caller holds e.mu.
func (e *registryEntry) close() error {
	if e.mgr == nil {
		return nil
	}
	err := e.mgr.Close()
	if e.closer != nil {
		if cerr := e.closer.Close(); err == nil {
			err = cerr
		}
	}
	e.mgr, e.closer = nil, nil
	return err
}

// Workspaces is the process-wide registry used by GuardianApp.
var Workspaces = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// canonical resolves symlinks where possible so that two spellings of the
// same directory share an entry.
func canonical(storageDir string) (string, error) {
	abs, err := filepath.Abs(storageDir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", storageDir, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return filepath.Clean(abs), nil
}

// Acquire returns the Manager for storageDir, calling open if none exists.
// A failed open is not cached. Every successful Acquire must be paired with
// a Release using the returned key.
func (r *Registry) Acquire(storageDir string, open OpenFunc) (*guardian.Manager, string, error) {
	key, err := canonical(storageDir)
	if err != nil {
		return nil, "", err
	}

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &registryEntry{}
		r.entries[key] = e
	}
	// Reserve before unlocking so a concurrent Release cannot drop the entry.
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mgr == nil {
		mgr, closer, err := open(key)
		if err != nil {
			r.unref(key, e)
			return nil, "", err
		}
		e.mgr, e.closer = mgr, closer
	}
	return e.mgr, key, nil
}

// Release drops one reference to key, closing the Manager when none remain.
func (r *Registry) Release(key string) error {
	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("workspace %s: %w", key, guardian.ErrNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !r.unref(key, e) {
		return nil
	}
	return e.close()
}

// unref decrements e and removes it from the map at zero, reporting whether it was removed.
func (r *Registry) unref(key string, e *registryEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	if e.refs > 0 {
		return false
	}
	if r.entries[key] == e {
		delete(r.entries, key)
	}
	return true
}

// Len returns the number of open workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CloseAll closes every Manager regardless of outstanding references.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	var errs []error
	for key, e := range entries {
		e.mu.Lock()
		if err := e.close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", key, err))
		}
		e.mu.Unlock()
	}
	return errors.Join(errs...)
}
