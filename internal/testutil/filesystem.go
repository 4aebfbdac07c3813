package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"guardian/internal/guardian"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
// Paths are used exactly as given; callers should pass absolute paths.
type MockFilesystemManager struct {
	mu      sync.Mutex
	files   map[string]*MockFile
	ignored map[string]bool
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files:   make(map[string]*MockFile),
		ignored: make(map[string]bool),
	}
}

// AddFile adds a file to the mock filesystem.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     time.Now(),
	}
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{
		Permissions: 0755,
		ModTime:     time.Now(),
		IsDirectory: true,
	}
}

// Ignore marks a file name as excluded from snapshots, in every directory.
func (m *MockFilesystemManager) Ignore(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignored[name] = true
}

// Content returns the content of a file and whether it exists.
func (m *MockFilesystemManager) Content(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok || f.IsDirectory {
		return nil, false
	}
	return append([]byte(nil), f.Content...), true
}

func (m *MockFilesystemManager) ListFiles(dir string) ([]*guardian.Path, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.files[dir]
	if !ok || !d.IsDirectory {
		return nil, fmt.Errorf("directory not found: %s", dir)
	}

	var names []string
	for p, f := range m.files {
		if f.IsDirectory || filepath.Dir(p) != dir {
			continue
		}
		names = append(names, p)
	}
	sort.Strings(names)

	paths := make([]*guardian.Path, 0, len(names))
	for _, p := range names {
		f := m.files[p]
		info := &mockFileInfo{
			name:    filepath.Base(p),
			size:    int64(len(f.Content)),
			mode:    f.Permissions,
			modTime: f.ModTime,
		}
		paths = append(paths, guardian.NewPath(p, filepath.Base(p), info))
	}
	return paths, nil
}

func (m *MockFilesystemManager) IsIgnored(dir string, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ignored[name], nil
}

func (m *MockFilesystemManager) Open(path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path)
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) WriteFile(path string, r io.Reader, mode fs.FileMode) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{
		Content:     data,
		Permissions: mode,
		ModTime:     time.Now(),
	}
	return nil
}

func (m *MockFilesystemManager) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("file not found: %s", path)
	}
	delete(m.files, path)
	return nil
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return false }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ guardian.FilesystemManager = (*MockFilesystemManager)(nil)
