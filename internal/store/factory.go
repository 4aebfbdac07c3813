package store

import (
	"fmt"
	"os"
	"path/filepath"

	"guardian/internal/config"
	"guardian/internal/guardian"
)

// DatabaseFile is the SQLite file created inside the storage directory.
const DatabaseFile = "guardian.db"

// NewStoreFromConfig creates a Store implementation based on the store config type.
func NewStoreFromConfig(cfg config.StoreConfig, storageDir string) (guardian.Store, error) {
	switch cfg.Type {
	case "", "json":
		if storageDir == "" {
			return nil, fmt.Errorf("storage directory required for json store")
		}
		s, err := NewJSONStore(storageDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		if storageDir == "" {
			return nil, fmt.Errorf("storage directory required for sqlite store")
		}
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		s, err := NewSQLiteStore(filepath.Join(storageDir, DatabaseFile))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
