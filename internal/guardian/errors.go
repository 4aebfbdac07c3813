package guardian

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced checkpoint, session or stored object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoSnapshot is returned by Rollback and Diff when no file contents were captured for a checkpoint.
	ErrNoSnapshot = errors.New("no snapshot recorded for checkpoint")
)

// ParseError reports a persisted document that could not be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
