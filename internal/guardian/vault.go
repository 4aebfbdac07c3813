package guardian

import "io"

// Vault stores snapshot content and manifests.
// All operations use io.Reader/io.Writer for streaming.
// Missing objects are reported with an error wrapping ErrNotFound.
type Vault interface {
	// PutContent stores content identified by its checksum.
	// The operation is idempotent: storing the same checksum multiple times is safe.
	// size is the number of bytes that will be read from r.
	PutContent(checksum string, r io.Reader, size int64) error

	// GetContent retrieves content by checksum and writes it to w.
	GetContent(checksum string, w io.Writer) error

	// HasContent reports whether content with the checksum is already stored.
	HasContent(checksum string) (bool, error)

	// PutMetadata stores a named metadata item, replacing any previous value.
	PutMetadata(name string, r io.Reader, size int64) error

	// GetMetadata retrieves a named metadata item and writes it to w.
	GetMetadata(name string, w io.Writer) error

	// DeleteMetadata removes a named metadata item. Deleting a missing item is not an error.
	DeleteMetadata(name string) error

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
