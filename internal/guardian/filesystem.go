package guardian

import (
	"io"
	"io/fs"
)

// FilesystemManager abstracts access to a target directory so the manager
// can be tested without touching the real filesystem.
type FilesystemManager interface {
	// ListFiles returns the regular files directly inside dir (non-recursive).
	// Symlinks are followed; entries that cannot be stat'ed are skipped.
	// An error is returned only if dir itself cannot be read.
	ListFiles(dir string) ([]*Path, error)

	// IsIgnored reports whether name inside dir is excluded from content snapshots.
	IsIgnored(dir string, name string) (bool, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// WriteFile replaces path with the content of r, applying mode.
	// Implementations must not leave a partially written file at path.
	WriteFile(path string, r io.Reader, mode fs.FileMode) error

	// Remove deletes a file.
	Remove(path string) error
}
