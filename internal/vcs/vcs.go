// Package vcs reads the current commit of a working directory.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"guardian/internal/config"
	"guardian/internal/guardian"
)

// DefaultTimeout bounds a single revision lookup.
const DefaultTimeout = 500 * time.Millisecond

// ErrNotRepository is returned for directories without a .git entry.
var ErrNotRepository = errors.New("not a git working copy")

// hasGitDir reports whether dir directly contains a .git directory, or a
// .git file as used by worktrees and submodules.
func hasGitDir(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// NoneReader never reports a revision.
type NoneReader struct{}

func (NoneReader) Revision(ctx context.Context, dir string) (string, error) {
	return "", ErrNotRepository
}

// NewReaderFromConfig creates a RevisionReader based on the vcs config type.
func NewReaderFromConfig(cfg config.VCSConfig) (guardian.RevisionReader, error) {
	timeout := DefaultTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}

	switch cfg.Type {
	case "git", "":
		return NewGitReader(timeout), nil
	case "go-git":
		return NewGoGitReader(timeout), nil
	case "none":
		return NoneReader{}, nil
	default:
		return nil, fmt.Errorf("unknown vcs type: %s", cfg.Type)
	}
}

var (
	_ guardian.RevisionReader = NoneReader{}
	_ guardian.RevisionReader = (*GitReader)(nil)
	_ guardian.RevisionReader = (*GoGitReader)(nil)
)
