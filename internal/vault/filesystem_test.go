package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"guardian/internal/guardian"
)

func TestFileSystemVault(t *testing.T) {
	exerciseVault(t, func(t *testing.T) guardian.Vault {
		v, err := NewFileSystemVault("test", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		return v
	})
}

func TestNewFileSystemVault(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")

	v, err := NewFileSystemVault("test", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	for _, sub := range []string{"content", "metadata"} {
		if _, err := os.Stat(filepath.Join(root, sub)); err != nil {
			t.Errorf("%s directory not created: %v", sub, err)
		}
	}
	if v.name != "test" {
		t.Errorf("name = %q, want %q", v.name, "test")
	}
}

func TestFileSystemVault_Layout(t *testing.T) {
	root := t.TempDir()
	v, err := NewFileSystemVault("test", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	v.PutContent("abc123", strings.NewReader("blob"), 4)
	v.PutMetadata("manifest-c1.json", strings.NewReader("{}"), 2)

	if data, err := os.ReadFile(filepath.Join(root, "content", "ab", "abc123")); err != nil || string(data) != "blob" {
		t.Errorf("content file = %q, %v; want %q", data, err, "blob")
	}
	if data, err := os.ReadFile(filepath.Join(root, "metadata", "manifest-c1.json")); err != nil || string(data) != "{}" {
		t.Errorf("metadata file = %q, %v; want %q", data, err, "{}")
	}
}

func TestFileSystemVault_RejectsEscapingKeys(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	for _, key := range []string{"", "..", "../evil", "a/b"} {
		if err := v.PutMetadata(key, strings.NewReader("x"), 1); err == nil {
			t.Errorf("PutMetadata(%q) expected error", key)
		}
		if err := v.PutContent(key, strings.NewReader("x"), 1); err == nil {
			t.Errorf("PutContent(%q) expected error", key)
		}
	}
}

func TestFileSystemVault_ValidateSetup_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")
	v, err := NewFileSystemVault("test", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	os.RemoveAll(root)

	if err := v.ValidateSetup(); err == nil {
		t.Error("ValidateSetup() expected error after root was removed")
	}
}
