package guardian

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so checkpoint and session timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation for checkpoints and sessions.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// monotonicMillis hands out millisecond timestamps that never go backwards
// within one process, even if the wall clock does.
type monotonicMillis struct {
	clock Clock
	last  int64
}

func (m *monotonicMillis) next() int64 {
	now := m.clock.Now().UnixMilli()
	if now < m.last {
		now = m.last
	}
	m.last = now
	return now
}

// observe raises the floor to ts, used when loading persisted records.
func (m *monotonicMillis) observe(ts int64) {
	if ts > m.last {
		m.last = ts
	}
}
