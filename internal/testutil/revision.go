package testutil

import (
	"context"
	"errors"
	"sync"
)

// StubRevisionReader returns a fixed revision, or an error when Rev is empty.
type StubRevisionReader struct {
	mu    sync.Mutex
	rev   string
	calls int
}

func NewStubRevisionReader(rev string) *StubRevisionReader {
	return &StubRevisionReader{rev: rev}
}

func (p *StubRevisionReader) Revision(ctx context.Context, dir string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.rev == "" {
		return "", errors.New("not a repository")
	}
	return p.rev, nil
}

// Calls returns how many times Revision was invoked.
func (p *StubRevisionReader) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
