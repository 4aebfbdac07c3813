package testutil

import (
	"strconv"
	"sync"
	"time"
)

// Epoch is the instant FixedClock starts at.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a manually driven guardian.Clock. When step is non-zero,
// every Now call moves the clock forward by step after reading it.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func NewStubClock(start time.Time) *StubClock {
	return &StubClock{now: start}
}

// FixedClock returns a StubClock stopped at Epoch.
func FixedClock() *StubClock {
	return NewStubClock(Epoch)
}

// SteppingClock returns a StubClock starting at Epoch that advances by step on each read.
func SteppingClock(step time.Duration) *StubClock {
	return &StubClock{now: Epoch, step: step}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Advance moves the clock by d, which may be negative.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps the clock to t.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// StubIDGenerator hands out the preset ids first, then "id-1", "id-2", ...
type StubIDGenerator struct {
	mu     sync.Mutex
	preset []string
	n      int
}

func NewStubIDGenerator(preset ...string) *StubIDGenerator {
	return &StubIDGenerator{preset: preset}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.preset) > 0 {
		id := g.preset[0]
		g.preset = g.preset[1:]
		return id
	}
	g.n++
	return "id-" + strconv.Itoa(g.n)
}
