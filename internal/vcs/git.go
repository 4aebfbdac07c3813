package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// GitReader runs `git rev-parse HEAD` in the target directory.
type GitReader struct {
	binary  string
	timeout time.Duration
}

// NewGitReader creates a GitReader using the git binary on PATH.
func NewGitReader(timeout time.Duration) *GitReader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GitReader{binary: "git", timeout: timeout}
}

// Revision returns the trimmed output of `git rev-parse HEAD`.
// A missing .git entry, a missing binary, a non-zero exit or the timeout
// expiring all produce an error.
func (p *GitReader) Revision(ctx context.Context, dir string) (string, error) {
	if !hasGitDir(dir) {
		return "", ErrNotRepository
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, "rev-parse", "HEAD")
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("git rev-parse: %w", ctx.Err())
		}
		return "", fmt.Errorf("git rev-parse: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	rev := strings.TrimSpace(stdout.String())
	if rev == "" {
		return "", fmt.Errorf("git rev-parse: empty output")
	}
	return rev, nil
}
