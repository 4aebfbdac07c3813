package app

import (
	"strings"
	"time"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation describes one CLI command run against a workspace. Its ID tags
// every log line written while the command runs.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	Status     string
	StartedAt  time.Time
}

// NewOperation creates an operation that starts out successful.
func NewOperation(name string, params []string, now time.Time) *Operation {
	return &Operation{
		ID:         now.UTC().Format("20060102T150405.000Z"),
		Name:       name,
		Parameters: strings.Join(params, " "),
		Status:     StatusSuccess,
		StartedAt:  now,
	}
}

// Record marks the operation failed if err is non-nil and returns err unchanged.
func (op *Operation) Record(err error) error {
	if err != nil {
		op.Status = StatusError
	}
	return err
}

// Failed reports whether any recorded step failed.
func (op *Operation) Failed() bool {
	return op.Status == StatusError
}
