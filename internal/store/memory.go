package store

import (
	"sync"

	"guardian/internal/guardian"
)

// MemoryStore keeps the collections in memory. Useful for tests and for
// hosts that do not need persistence. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.Mutex
	checkpoints []guardian.Checkpoint
	sessions    []guardian.Session
	saves       int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() ([]guardian.Checkpoint, []guardian.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCheckpoints(s.checkpoints), copySessions(s.sessions), nil
}

func (s *MemoryStore) Save(checkpoints []guardian.Checkpoint, sessions []guardian.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints = copyCheckpoints(checkpoints)
	s.sessions = copySessions(sessions)
	s.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error {
	return nil
}

func copyCheckpoints(in []guardian.Checkpoint) []guardian.Checkpoint {
	out := make([]guardian.Checkpoint, len(in))
	for i, c := range in {
		if c.CommitHash != nil {
			h := *c.CommitHash
			c.CommitHash = &h
		}
		out[i] = c
	}
	return out
}

func copySessions(in []guardian.Session) []guardian.Session {
	out := make([]guardian.Session, len(in))
	for i, s := range in {
		if s.EndTime != nil {
			t := *s.EndTime
			s.EndTime = &t
		}
		out[i] = s
	}
	return out
}

var _ guardian.Store = (*MemoryStore)(nil)
