package vault

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"guardian/internal/guardian"
)

// exerciseVault runs the behavior every Vault implementation shares.
func exerciseVault(t *testing.T, open func(t *testing.T) guardian.Vault) {
	t.Helper()

	t.Run("content round trip", func(t *testing.T) {
		v := open(t)
		for _, data := range []string{"hello world", "", strings.Repeat("x", 10000)} {
			checksum := "sum" + string(rune('a'+len(data)%26))
			if err := v.PutContent(checksum, strings.NewReader(data), int64(len(data))); err != nil {
				t.Fatalf("PutContent() error = %v", err)
			}
			var buf bytes.Buffer
			if err := v.GetContent(checksum, &buf); err != nil {
				t.Fatalf("GetContent() error = %v", err)
			}
			if buf.String() != data {
				t.Errorf("content = %q, want %q", buf.String(), data)
			}
		}
	})

	t.Run("put content is idempotent", func(t *testing.T) {
		v := open(t)
		data := "hello world"
		for i := 0; i < 2; i++ {
			if err := v.PutContent("abc123", strings.NewReader(data), int64(len(data))); err != nil {
				t.Fatalf("PutContent() #%d error = %v", i+1, err)
			}
		}
		var buf bytes.Buffer
		if err := v.GetContent("abc123", &buf); err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if buf.String() != data {
			t.Errorf("content = %q, want %q", buf.String(), data)
		}
	})

	t.Run("size mismatch is rejected", func(t *testing.T) {
		v := open(t)
		if err := v.PutContent("short", strings.NewReader("hello"), 100); err == nil {
			t.Error("PutContent() expected error for size mismatch")
		}
		if ok, _ := v.HasContent("short"); ok {
			t.Error("HasContent() = true after failed PutContent")
		}
	})

	t.Run("has content", func(t *testing.T) {
		v := open(t)
		if ok, err := v.HasContent("abc"); err != nil || ok {
			t.Fatalf("HasContent() = %v, %v; want false, nil", ok, err)
		}
		v.PutContent("abc", strings.NewReader("x"), 1)
		if ok, err := v.HasContent("abc"); err != nil || !ok {
			t.Fatalf("HasContent() = %v, %v; want true, nil", ok, err)
		}
	})

	t.Run("missing objects wrap ErrNotFound", func(t *testing.T) {
		v := open(t)
		var buf bytes.Buffer
		if err := v.GetContent("nonexistent", &buf); !errors.Is(err, guardian.ErrNotFound) {
			t.Errorf("GetContent() error = %v, want ErrNotFound", err)
		}
		if err := v.GetMetadata("nonexistent", &buf); !errors.Is(err, guardian.ErrNotFound) {
			t.Errorf("GetMetadata() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("metadata overwrite and delete", func(t *testing.T) {
		v := open(t)
		for _, data := range []string{"version 1", "version 2"} {
			if err := v.PutMetadata("manifest-1.json", strings.NewReader(data), int64(len(data))); err != nil {
				t.Fatalf("PutMetadata() error = %v", err)
			}
		}

		var buf bytes.Buffer
		if err := v.GetMetadata("manifest-1.json", &buf); err != nil {
			t.Fatalf("GetMetadata() error = %v", err)
		}
		if buf.String() != "version 2" {
			t.Errorf("metadata = %q, want %q", buf.String(), "version 2")
		}

		if err := v.DeleteMetadata("manifest-1.json"); err != nil {
			t.Fatalf("DeleteMetadata() error = %v", err)
		}
		if err := v.GetMetadata("manifest-1.json", &buf); !errors.Is(err, guardian.ErrNotFound) {
			t.Errorf("GetMetadata() after delete error = %v, want ErrNotFound", err)
		}
		if err := v.DeleteMetadata("manifest-1.json"); err != nil {
			t.Errorf("DeleteMetadata() of missing item error = %v", err)
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := open(t).ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestMemoryVault(t *testing.T) {
	exerciseVault(t, func(t *testing.T) guardian.Vault {
		return NewMemoryVault("test")
	})

	t.Run("content count", func(t *testing.T) {
		v := NewMemoryVault("test")
		v.PutContent("a", strings.NewReader("1"), 1)
		v.PutContent("a", strings.NewReader("1"), 1)
		v.PutContent("b", strings.NewReader("2"), 1)
		if v.ContentCount() != 2 {
			t.Errorf("ContentCount() = %d, want 2", v.ContentCount())
		}
	})
}
