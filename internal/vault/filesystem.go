package vault

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gfs "guardian/internal/fs"
	"guardian/internal/guardian"
)

const (
	contentSubdir  = "content"
	metadataSubdir = "metadata"
)

// FileSystemVault keeps blobs and manifests under a local directory:
//
//	<root>/content/<first two chars of key>/<key>
//	<root>/metadata/<name>
//
// Sharding keeps the content directories small for large workspaces.
// All writes go through WriteFileAtomic.
type FileSystemVault struct {
	name string
	root string
}

var _ guardian.Vault = (*FileSystemVault)(nil)

// NewFileSystemVault creates the directory layout under root if needed.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	v := &FileSystemVault{name: name, root: root}
	for _, sub := range []string{contentSubdir, metadataSubdir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0755); err != nil {
			return nil, fmt.Errorf("vault %s: creating %s: %w", name, sub, err)
		}
	}
	return v, nil
}

func (v *FileSystemVault) contentPath(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(v.root, contentSubdir, shard, key)
}

func (v *FileSystemVault) metadataPath(name string) string {
	return filepath.Join(v.root, metadataSubdir, name)
}

// PutContent is idempotent. When key is already stored, r is still read to
// the end so that a short stream is reported.
func (v *FileSystemVault) PutContent(key string, r io.Reader, size int64) error {
	if err := validKey(key); err != nil {
		return err
	}
	dest := v.contentPath(key)
	if exists, err := fileExists(dest); err != nil {
		return fmt.Errorf("vault %s: %w", v.name, err)
	} else if exists {
		if _, err := io.Copy(io.Discard, newExactSizeReader(r, size)); err != nil {
			return fmt.Errorf("vault %s: draining %s: %w", v.name, key, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("vault %s: %w", v.name, err)
	}
	return v.store(dest, r, size)
}

func (v *FileSystemVault) GetContent(key string, w io.Writer) error {
	if err := validKey(key); err != nil {
		return err
	}
	return v.load(v.contentPath(key), w)
}

func (v *FileSystemVault) HasContent(key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	ok, err := fileExists(v.contentPath(key))
	if err != nil {
		return false, fmt.Errorf("vault %s: %w", v.name, err)
	}
	return ok, nil
}

func (v *FileSystemVault) PutMetadata(name string, r io.Reader, size int64) error {
	if err := validKey(name); err != nil {
		return err
	}
	return v.store(v.metadataPath(name), r, size)
}

func (v *FileSystemVault) GetMetadata(name string, w io.Writer) error {
	if err := validKey(name); err != nil {
		return err
	}
	return v.load(v.metadataPath(name), w)
}

func (v *FileSystemVault) DeleteMetadata(name string) error {
	if err := validKey(name); err != nil {
		return err
	}
	if err := os.Remove(v.metadataPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("vault %s: deleting %s: %w", v.name, name, err)
	}
	return nil
}

func (v *FileSystemVault) ValidateSetup() error {
	for _, dir := range []string{v.root, filepath.Join(v.root, contentSubdir), filepath.Join(v.root, metadataSubdir)} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault %s: %w", v.name, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault %s: %s is not a directory", v.name, dir)
		}
	}
	return nil
}

func (v *FileSystemVault) store(dest string, r io.Reader, size int64) error {
	if _, err := gfs.WriteFileAtomic(dest, newExactSizeReader(r, size), 0644); err != nil {
		return fmt.Errorf("vault %s: %w", v.name, err)
	}
	return nil
}

func (v *FileSystemVault) load(src string, w io.Writer) error {
	f, err := os.Open(src)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("vault %s: %s: %w", v.name, filepath.Base(src), guardian.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("vault %s: %w", v.name, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("vault %s: reading %s: %w", v.name, filepath.Base(src), err)
	}
	return nil
}

func fileExists(name string) (bool, error) {
	_, err := os.Stat(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
