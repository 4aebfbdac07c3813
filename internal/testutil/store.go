package testutil

import (
	"errors"
	"sync"

	"guardian/internal/guardian"
	"guardian/internal/store"
)

// NewTestStore creates a new in-memory store for testing.
func NewTestStore() *store.MemoryStore {
	return store.NewMemoryStore()
}

// ErrSaveFailed is returned by FailingStore once failing is switched on.
var ErrSaveFailed = errors.New("save failed")

// FailingStore wraps a store and fails every Save while Fail is set.
type FailingStore struct {
	guardian.Store

	mu   sync.Mutex
	fail bool
}

func NewFailingStore(inner guardian.Store) *FailingStore {
	return &FailingStore{Store: inner}
}

// SetFail turns Save failures on or off.
func (s *FailingStore) SetFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *FailingStore) Save(checkpoints []guardian.Checkpoint, sessions []guardian.Session) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return ErrSaveFailed
	}
	return s.Store.Save(checkpoints, sessions)
}
