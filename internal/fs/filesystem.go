package fs

import (
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"

	"guardian/internal/guardian"
)

// IgnoreFile is the per-directory ignore file read by IsIgnored.
const IgnoreFile = ".guardianignore"

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
type OSFilesystemManager struct {
	ignore []string
}

// NewOSFilesystemManager creates a filesystem manager that operates on the
// real filesystem. ignore holds patterns applied in every directory, on top
// of the directory's own .guardianignore.
func NewOSFilesystemManager(ignore []string) *OSFilesystemManager {
	return &OSFilesystemManager{ignore: ignore}
}

// ListFiles returns the regular files directly inside dir. Symlinks are
// followed, so a link to a regular file counts and a link to a directory
// does not. Entries that cannot be stat'ed are skipped.
func (m *OSFilesystemManager) ListFiles(dir string) ([]*guardian.Path, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var paths []*guardian.Path
	for _, entry := range entries {
		fullPath := filepath.Join(absDir, entry.Name())
		info, err := os.Stat(fullPath)
		if err != nil {
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		paths = append(paths, guardian.NewPath(fullPath, entry.Name(), info))
	}
	return paths, nil
}

// IsIgnored reports whether name inside dir matches the configured patterns,
// the defaults, or the patterns in dir's .guardianignore.
func (m *OSFilesystemManager) IsIgnored(dir string, name string) (bool, error) {
	filePatterns, err := ParseIgnoreFile(filepath.Join(dir, IgnoreFile))
	if err != nil {
		return false, err
	}

	patterns := make([]string, 0, len(builtinIgnores)+len(m.ignore)+len(filePatterns))
	patterns = append(patterns, builtinIgnores...)
	patterns = append(patterns, m.ignore...)
	patterns = append(patterns, filePatterns...)

	return NewIgnoreMatcher(patterns).Match(name), nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// WriteFile atomically replaces path with the content of r.
func (m *OSFilesystemManager) WriteFile(path string, r io.Reader, mode iofs.FileMode) error {
	_, err := WriteFileAtomic(path, r, mode)
	return err
}

// Remove deletes a file.
func (m *OSFilesystemManager) Remove(path string) error {
	return os.Remove(path)
}

// Compile-time check that OSFilesystemManager implements guardian.FilesystemManager interface
var _ guardian.FilesystemManager = (*OSFilesystemManager)(nil)
