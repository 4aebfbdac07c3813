package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"guardian/internal/config"
)

// StorageDirName is the per-workspace directory holding checkpoint state
// when the config does not name one.
const StorageDirName = ".guardian"

// Defaults are the process-wide paths guardian falls back to.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - GUARDIAN_CONFIG_PATH: config file location (default: ~/.config/guardian.toml)
//   - GUARDIAN_HOME: base directory for logs and keys (default: ~/.local/share/guardian)
func GetDefaults() (Defaults, error) {
	configPath, err := envOrHome("GUARDIAN_CONFIG_PATH", ".config", "guardian.toml")
	if err != nil {
		return Defaults{}, err
	}
	baseDir, err := envOrHome("GUARDIAN_HOME", ".local", "share", "guardian")
	if err != nil {
		return Defaults{}, err
	}

	return Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// envOrHome returns the value of env if set, else the path under the home directory.
func envOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}

// ErrStorageContainsWorkspace is returned when the configured storage
// directory is the workspace itself or one of its ancestors. Snapshots and
// rollback would then treat the persisted state as workspace files.
var ErrStorageContainsWorkspace = errors.New("storage directory must not contain the workspace")

// StorageDir returns the absolute storage directory for a workspace:
// cfg.StorageDir when set, otherwise workDir/.guardian.
func StorageDir(cfg *config.Config, workDir string) (string, error) {
	work, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("resolving workspace: %w", err)
	}
	dir := cfg.StorageDir
	if dir == "" {
		return filepath.Join(work, StorageDirName), nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving storage directory: %w", err)
	}
	if within(work, abs) {
		return "", fmt.Errorf("%s: %w %s", abs, ErrStorageContainsWorkspace, work)
	}
	return abs, nil
}

// within reports whether path is dir or lies below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
