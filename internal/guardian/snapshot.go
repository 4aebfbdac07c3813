package guardian

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// ManifestSchemaVersion is the manifest format written by this build.
const ManifestSchemaVersion = 1

// DefaultMaxFileSize is the largest file captured into a snapshot (10MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// SnapshotEntry describes one captured file.
type SnapshotEntry struct {
	Name     string      `json:"name"`
	Checksum string      `json:"checksum"`
	Size     int64       `json:"size"`
	Mode     fs.FileMode `json:"mode"`
}

// SnapshotManifest lists the file contents captured for a checkpoint.
// Skipped names were present but too large to capture; rollback leaves them alone.
type SnapshotManifest struct {
	SchemaVersion int             `json:"schema_version"`
	CheckpointID  string          `json:"checkpoint_id"`
	Entries       []SnapshotEntry `json:"entries"`
	Skipped       []string        `json:"skipped,omitempty"`
}

// SnapshotOptions tunes content capture.
type SnapshotOptions struct {
	MaxFileSize      int64 // <= 0 means DefaultMaxFileSize
	CompressionLevel int   // zstd level; <= 0 means the zstd default
}

// Snapshotter captures the regular files of a target directory into a Vault
// and can later compare or restore them.
//
// Blobs are addressed by the SHA-256 of their plaintext, compressed with zstd
// and, when an Encryptor is set, encrypted after compression. Manifests are
// stored as vault metadata named "manifest-<checkpoint id>.json".
type Snapshotter struct {
	vault       Vault
	fsmgr       FilesystemManager
	encryptor   Encryptor
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	maxFileSize int64
	logger      Logger
}

// NewSnapshotter creates a Snapshotter. encryptor may be nil for plaintext blobs.
func NewSnapshotter(vault Vault, fsmgr FilesystemManager, encryptor Encryptor, opts SnapshotOptions, logger Logger) (*Snapshotter, error) {
	encOpts := []zstd.EOption{}
	if opts.CompressionLevel > 0 {
		encOpts = append(encOpts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.CompressionLevel)))
	}
	encoder, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	return &Snapshotter{
		vault:       vault,
		fsmgr:       fsmgr,
		encryptor:   encryptor,
		encoder:     encoder,
		decoder:     decoder,
		maxFileSize: maxFileSize,
		logger:      orNop(logger),
	}, nil
}

// Close releases the zstd encoder and decoder. The Snapshotter is unusable afterwards.
func (s *Snapshotter) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}

func manifestName(checkpointID string) string {
	return "manifest-" + checkpointID + ".json"
}

// Capture stores the current contents of dir and records a manifest for checkpointID.
func (s *Snapshotter) Capture(checkpointID string, dir string) (*SnapshotManifest, error) {
	files, err := s.fsmgr.ListFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	manifest := &SnapshotManifest{
		SchemaVersion: ManifestSchemaVersion,
		CheckpointID:  checkpointID,
		Entries:       []SnapshotEntry{},
	}

	for _, f := range files {
		ignored, err := s.fsmgr.IsIgnored(dir, f.Name())
		if err != nil {
			return nil, fmt.Errorf("checking ignore rules: %w", err)
		}
		if ignored {
			continue
		}
		if f.Info().Size() > s.maxFileSize {
			manifest.Skipped = append(manifest.Skipped, f.Name())
			s.logger.Warn("file too large for snapshot", "path", f.String(), "size", f.Info().Size())
			continue
		}

		data, ok, err := s.readLimited(f.String())
		if err != nil {
			return nil, err
		}
		if !ok {
			// Grew past the limit after it was listed.
			manifest.Skipped = append(manifest.Skipped, f.Name())
			continue
		}

		checksum := checksumOf(data)
		if err := s.putContent(checksum, data); err != nil {
			return nil, fmt.Errorf("storing %s: %w", f.Name(), err)
		}

		manifest.Entries = append(manifest.Entries, SnapshotEntry{
			Name:     f.Name(),
			Checksum: checksum,
			Size:     int64(len(data)),
			Mode:     f.Info().Mode().Perm(),
		})
	}

	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := s.vault.PutMetadata(manifestName(checkpointID), bytes.NewReader(raw), int64(len(raw))); err != nil {
		return nil, fmt.Errorf("storing manifest: %w", err)
	}

	s.logger.Debug("snapshot captured", "checkpoint", checkpointID, "files", len(manifest.Entries))
	return manifest, nil
}

// Manifest loads the manifest recorded for checkpointID.
// Returns an error wrapping ErrNoSnapshot if none was recorded.
func (s *Snapshotter) Manifest(checkpointID string) (*SnapshotManifest, error) {
	name := manifestName(checkpointID)

	var buf bytes.Buffer
	if err := s.vault.GetMetadata(name, &buf); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("checkpoint %s: %w", checkpointID, ErrNoSnapshot)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var manifest SnapshotManifest
	if err := json.Unmarshal(buf.Bytes(), &manifest); err != nil {
		return nil, &ParseError{Path: name, Err: err}
	}
	if manifest.SchemaVersion > ManifestSchemaVersion {
		return nil, fmt.Errorf("manifest %s has schema version %d, newest supported is %d", name, manifest.SchemaVersion, ManifestSchemaVersion)
	}
	for _, e := range manifest.Entries {
		if !isPlainName(e.Name) {
			return nil, fmt.Errorf("manifest %s: invalid entry name %q", name, e.Name)
		}
	}
	return &manifest, nil
}

// Discard removes the manifest for checkpointID. Content blobs are shared
// between checkpoints and are left in place.
func (s *Snapshotter) Discard(checkpointID string) error {
	return s.vault.DeleteMetadata(manifestName(checkpointID))
}

// Diff reports how dir has changed since the manifest was captured.
// OldContent holds the checkpoint version and NewContent the current one.
func (s *Snapshotter) Diff(manifest *SnapshotManifest, dir string) ([]FileChange, error) {
	current, order, err := s.currentState(manifest, dir)
	if err != nil {
		return nil, err
	}

	var changes []FileChange
	inManifest := make(map[string]bool, len(manifest.Entries))
	for _, e := range manifest.Entries {
		inManifest[e.Name] = true

		cur, exists := current[e.Name]
		if exists && checksumOf(cur) == e.Checksum {
			continue
		}

		old, err := s.getContent(e)
		if err != nil {
			return nil, err
		}
		if !exists {
			changes = append(changes, FileChange{Path: e.Name, OldContent: strPtr(old), ChangeType: ChangeDeleted})
			continue
		}
		changes = append(changes, FileChange{Path: e.Name, OldContent: strPtr(old), NewContent: strPtr(cur), ChangeType: ChangeModified})
	}

	for _, name := range order {
		if inManifest[name] {
			continue
		}
		changes = append(changes, FileChange{Path: name, NewContent: strPtr(current[name]), ChangeType: ChangeAdded})
	}

	return changes, nil
}

// Restore rewrites dir to match the manifest: captured files are written
// back and other snapshot-eligible files are removed.
// The returned changes describe what was applied, with OldContent holding the
// content before the restore. On error the changes applied so far are returned.
func (s *Snapshotter) Restore(manifest *SnapshotManifest, dir string) ([]FileChange, error) {
	current, order, err := s.currentState(manifest, dir)
	if err != nil {
		return nil, err
	}

	var applied []FileChange
	inManifest := make(map[string]bool, len(manifest.Entries))
	for _, e := range manifest.Entries {
		inManifest[e.Name] = true

		cur, exists := current[e.Name]
		if exists && checksumOf(cur) == e.Checksum {
			continue
		}

		data, err := s.getContent(e)
		if err != nil {
			return applied, err
		}
		if err := s.fsmgr.WriteFile(filepath.Join(dir, e.Name), bytes.NewReader(data), e.Mode); err != nil {
			return applied, fmt.Errorf("restoring %s: %w", e.Name, err)
		}

		change := FileChange{Path: e.Name, NewContent: strPtr(data), ChangeType: ChangeAdded}
		if exists {
			change.OldContent = strPtr(cur)
			change.ChangeType = ChangeModified
		}
		applied = append(applied, change)
		s.logger.Debug("file restored", "path", e.Name)
	}

	for _, name := range order {
		if inManifest[name] {
			continue
		}
		if err := s.fsmgr.Remove(filepath.Join(dir, name)); err != nil {
			return applied, fmt.Errorf("removing %s: %w", name, err)
		}
		applied = append(applied, FileChange{Path: name, OldContent: strPtr(current[name]), ChangeType: ChangeDeleted})
		s.logger.Debug("file removed", "path", name)
	}

	return applied, nil
}

// currentState reads the snapshot-eligible files of dir. A file is eligible
// if it is not ignored, within the size limit, and not skipped by the manifest.
// order lists the names sorted for deterministic output.
func (s *Snapshotter) currentState(manifest *SnapshotManifest, dir string) (map[string][]byte, []string, error) {
	files, err := s.fsmgr.ListFiles(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("listing files: %w", err)
	}

	skipped := make(map[string]bool, len(manifest.Skipped))
	for _, name := range manifest.Skipped {
		skipped[name] = true
	}

	state := make(map[string][]byte, len(files))
	var order []string
	for _, f := range files {
		if skipped[f.Name()] || f.Info().Size() > s.maxFileSize {
			continue
		}
		ignored, err := s.fsmgr.IsIgnored(dir, f.Name())
		if err != nil {
			return nil, nil, fmt.Errorf("checking ignore rules: %w", err)
		}
		if ignored {
			continue
		}

		data, ok, err := s.readLimited(f.String())
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		state[f.Name()] = data
		order = append(order, f.Name())
	}
	sort.Strings(order)
	return state, order, nil
}

// readLimited reads a whole file, reporting ok=false if it exceeds maxFileSize.
func (s *Snapshotter) readLimited(path string) ([]byte, bool, error) {
	rc, err := s.fsmgr.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, s.maxFileSize+1))
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	if int64(len(data)) > s.maxFileSize {
		return nil, false, nil
	}
	return data, true, nil
}

// putContent compresses, optionally encrypts, and stores data unless the vault already has it.
func (s *Snapshotter) putContent(checksum string, data []byte) error {
	exists, err := s.vault.HasContent(checksum)
	if err != nil {
		return fmt.Errorf("checking for existing content: %w", err)
	}
	if exists {
		s.logger.Debug("content deduplicated", "checksum", checksum)
		return nil
	}

	payload := s.encoder.EncodeAll(data, nil)
	if s.encryptor != nil {
		var buf bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(payload), &buf); err != nil {
			return fmt.Errorf("encrypting content: %w", err)
		}
		payload = buf.Bytes()
	}

	return s.vault.PutContent(checksum, bytes.NewReader(payload), int64(len(payload)))
}

// getContent fetches and decodes the content of a manifest entry, verifying its checksum.
func (s *Snapshotter) getContent(e SnapshotEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.vault.GetContent(e.Checksum, &buf); err != nil {
		return nil, fmt.Errorf("retrieving %s from vault: %w", e.Name, err)
	}

	payload := buf.Bytes()
	if s.encryptor != nil {
		var plain bytes.Buffer
		if err := s.encryptor.Decrypt(bytes.NewReader(payload), &plain); err != nil {
			return nil, fmt.Errorf("decrypting %s: %w", e.Name, err)
		}
		payload = plain.Bytes()
	}

	data, err := s.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", e.Name, err)
	}
	if checksumOf(data) != e.Checksum {
		return nil, fmt.Errorf("content checksum mismatch for %s", e.Name)
	}
	return data, nil
}

func checksumOf(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func strPtr(b []byte) *string {
	s := string(b)
	return &s
}

// isPlainName rejects manifest names that would escape the target directory.
func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name
}
