package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	gfs "guardian/internal/fs"
	"guardian/internal/guardian"
)

// Config represents the main configuration for guardian.
type Config struct {
	BaseDir string `toml:"base_dir"`
	LogDir  string `toml:"log_dir"`
	// StorageDir overrides the per-workspace storage directory.
	// Empty means "<workspace>/.guardian".
	StorageDir string                  `toml:"storage_dir,omitempty"`
	Guardian   guardian.GuardianConfig `toml:"guardian"`
	Store      StoreConfig             `toml:"store"`
	Snapshot   SnapshotConfig          `toml:"snapshot"`
	Encryption EncryptionConfig        `toml:"encryption"`
	VCS        VCSConfig               `toml:"vcs"`
}

// StoreConfig selects how checkpoints and sessions are persisted.
type StoreConfig struct {
	Type string `toml:"type"` // "json" (default), "sqlite" or "memory"
}

// SnapshotConfig controls content capture for rollback and diff.
type SnapshotConfig struct {
	Enabled          bool        `toml:"enabled"`
	Vault            VaultConfig `toml:"vault"`
	CompressionLevel int         `toml:"compression_level"` // zstd level, 0 means default
	MaxFileSize      int64       `toml:"max_file_size"`     // bytes; larger files are not captured
	Ignore           []string    `toml:"ignore"`
}

// VaultConfig represents configuration for a snapshot vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // for S3-compatible services
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem").
	// Empty means "<storage dir>/vault".
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// EncryptionConfig selects how snapshot blobs are encrypted at rest.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VCSConfig selects how commit hashes are read.
type VCSConfig struct {
	Type      string `toml:"type"`       // "git" (default), "go-git" or "none"
	TimeoutMS int    `toml:"timeout_ms"` // bound on the git subprocess
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		Guardian: guardian.DefaultGuardianConfig(),
		Store:    StoreConfig{Type: "json"},
		Snapshot: SnapshotConfig{
			Enabled:          true,
			Vault:            VaultConfig{Type: "filesystem", Name: "local"},
			CompressionLevel: 3,
			MaxFileSize:      guardian.DefaultMaxFileSize,
			Ignore:           []string{"*.swp", "*.tmp", ".DS_Store"},
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "guardian.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "guardian.key"),
		},
		VCS: VCSConfig{Type: "git", TimeoutMS: 500},
	}
}

// Decode reads TOML from r on top of the defaults for baseDir, so a file
// only needs the settings it changes. Unknown keys are an error.
func Decode(r io.Reader, baseDir string) (*Config, error) {
	cfg := NewConfig(baseDir)
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Encode writes cfg as TOML.
func Encode(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// ReadFromFile decodes the file at path over the defaults for baseDir.
// A missing file is reported with an error wrapping os.ErrNotExist.
func ReadFromFile(path, baseDir string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := Decode(f, baseDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if _, err := gfs.WriteFileAtomic(path, &buf, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
