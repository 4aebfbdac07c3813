package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gfs "guardian/internal/fs"
	"guardian/internal/guardian"
)

const (
	CheckpointsFile = "checkpoints.json"
	SessionsFile    = "sessions.json"
)

// JSONStore persists each collection as a pretty-printed JSON array:
//
//	<dir>/
//	  checkpoints.json
//	  sessions.json
//
// Each file is replaced atomically, but the pair is written one after the
// other, so a crash between the two writes can leave them out of step.
type JSONStore struct {
	dir string
}

// NewJSONStore creates a JSONStore in dir, creating the directory if needed.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *JSONStore) Dir() string {
	return s.dir
}

func (s *JSONStore) Load() ([]guardian.Checkpoint, []guardian.Session, error) {
	checkpoints, err := readArray[guardian.Checkpoint](filepath.Join(s.dir, CheckpointsFile))
	if err != nil {
		return nil, nil, err
	}
	for _, c := range checkpoints {
		if c.ID == "" {
			return nil, nil, &guardian.ParseError{Path: filepath.Join(s.dir, CheckpointsFile), Err: errors.New("checkpoint without id")}
		}
	}

	sessions, err := readArray[guardian.Session](filepath.Join(s.dir, SessionsFile))
	if err != nil {
		return nil, nil, err
	}
	for _, ss := range sessions {
		if ss.ID == "" {
			return nil, nil, &guardian.ParseError{Path: filepath.Join(s.dir, SessionsFile), Err: errors.New("session without id")}
		}
	}

	return checkpoints, sessions, nil
}

func (s *JSONStore) Save(checkpoints []guardian.Checkpoint, sessions []guardian.Session) error {
	if err := writeArray(filepath.Join(s.dir, CheckpointsFile), checkpoints); err != nil {
		return err
	}
	return writeArray(filepath.Join(s.dir, SessionsFile), sessions)
}

// Close is a no-op; JSONStore holds no open resources.
func (s *JSONStore) Close() error {
	return nil
}

// readArray decodes a JSON array from path. A missing file yields an empty slice.
func readArray[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &guardian.ParseError{Path: path, Err: err}
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func writeArray[T any](path string, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if _, err := gfs.WriteFileAtomic(path, bytes.NewReader(data), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

var _ guardian.Store = (*JSONStore)(nil)
