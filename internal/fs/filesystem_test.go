package fs

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func names(t *testing.T, m *OSFilesystemManager, dir string) []string {
	t.Helper()
	paths, err := m.ListFiles(dir)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	var out []string
	for _, p := range paths {
		out = append(out, p.Name())
	}
	sort.Strings(out)
	return out
}

func TestOSFilesystemManager_ListFiles(t *testing.T) {
	t.Run("counts only regular files at the top level", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "a.txt"), "a")
		writeFile(t, filepath.Join(dir, "b.txt"), "b")
		writeFile(t, filepath.Join(dir, "c.txt"), "c")
		if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
			t.Fatal(err)
		}
		writeFile(t, filepath.Join(dir, "sub", "nested.txt"), "n")

		got := names(t, NewOSFilesystemManager(nil), dir)
		if strings.Join(got, ",") != "a.txt,b.txt,c.txt" {
			t.Errorf("ListFiles() = %v, want [a.txt b.txt c.txt]", got)
		}
	})

	t.Run("follows symlinks to files but not to directories", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("symlinks need privileges on windows")
		}
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "real.txt"), "r")
		if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
			t.Fatal(err)
		}
		os.Symlink(filepath.Join(dir, "real.txt"), filepath.Join(dir, "link.txt"))
		os.Symlink(filepath.Join(dir, "sub"), filepath.Join(dir, "linkdir"))
		os.Symlink(filepath.Join(dir, "missing"), filepath.Join(dir, "dangling"))

		got := names(t, NewOSFilesystemManager(nil), dir)
		if strings.Join(got, ",") != "link.txt,real.txt" {
			t.Errorf("ListFiles() = %v, want [link.txt real.txt]", got)
		}
	})

	t.Run("records absolute paths and stat info", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "a.txt"), "hello")

		paths, err := NewOSFilesystemManager(nil).ListFiles(dir)
		if err != nil {
			t.Fatalf("ListFiles() error = %v", err)
		}
		if len(paths) != 1 {
			t.Fatalf("len(paths) = %d, want 1", len(paths))
		}
		if !filepath.IsAbs(paths[0].String()) {
			t.Errorf("path %q is not absolute", paths[0].String())
		}
		if paths[0].Info().Size() != 5 {
			t.Errorf("size = %d, want 5", paths[0].Info().Size())
		}
	})

	t.Run("missing directory is an error", func(t *testing.T) {
		_, err := NewOSFilesystemManager(nil).ListFiles(filepath.Join(t.TempDir(), "nope"))
		if err == nil {
			t.Fatal("ListFiles() expected error for missing directory")
		}
	})
}

func TestOSFilesystemManager_IsIgnored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, IgnoreFile), "secrets.env\n*.bak\n")

	m := NewOSFilesystemManager([]string{"*.swp"})
	tests := []struct {
		name string
		want bool
	}{
		{name: "main.go", want: false},
		{name: "notes.swp", want: true},
		{name: "secrets.env", want: true},
		{name: "old.bak", want: true},
		{name: IgnoreFile, want: true},
		{name: ".tmp-12345", want: true},
	}
	for _, tt := range tests {
		got, err := m.IsIgnored(dir, tt.name)
		if err != nil {
			t.Fatalf("IsIgnored(%q) error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("IsIgnored(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOSFilesystemManager_WriteFileAndRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	writeFile(t, path, "old content that is longer")

	m := NewOSFilesystemManager(nil)
	if err := m.WriteFile(path, bytes.NewReader([]byte("new")), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	rc, err := m.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "new" {
		t.Errorf("content = %q, want %q", data, "new")
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("mode = %v, want 0600", info.Mode().Perm())
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory has %d entries after write, want 1", len(entries))
	}

	if err := m.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still exists after Remove")
	}
}

func TestWriteFileAtomic_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.txt")
	if _, err := WriteFileAtomic(path, strings.NewReader("x"), 0644); err == nil {
		t.Fatal("WriteFileAtomic() expected error for missing directory")
	}
}
