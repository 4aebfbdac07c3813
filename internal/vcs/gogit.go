package vcs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
)

// GoGitReader reads HEAD with go-git, without needing a git binary.
type GoGitReader struct {
	timeout time.Duration
}

func NewGoGitReader(timeout time.Duration) *GoGitReader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GoGitReader{timeout: timeout}
}

// Revision returns the hash HEAD resolves to. Repositories without commits
// have no revision.
func (p *GoGitReader) Revision(ctx context.Context, dir string) (string, error) {
	if !hasGitDir(dir) {
		return "", ErrNotRepository
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		rev string
		err error
	}
	done := make(chan result, 1)
	go func() {
		rev, err := headHash(dir)
		done <- result{rev, err}
	}()

	select {
	case r := <-done:
		return r.rev, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("reading HEAD: %w", ctx.Err())
	}
}

func headHash(dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("failed to open git repository: %w", err)
	}
	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}
