package store

import (
	"os"
	"path/filepath"
	"testing"

	"guardian/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.StoreConfig
		storageDir func(t *testing.T) string
		wantErr    bool
		wantFile   string
	}{
		{name: "json", cfg: config.StoreConfig{Type: "json"}, storageDir: tempDir},
		{name: "empty type defaults to json", cfg: config.StoreConfig{}, storageDir: tempDir},
		{name: "sqlite", cfg: config.StoreConfig{Type: "sqlite"}, storageDir: tempDir, wantFile: DatabaseFile},
		{name: "memory", cfg: config.StoreConfig{Type: "memory"}, storageDir: noDir},
		{name: "json without storage dir", cfg: config.StoreConfig{Type: "json"}, storageDir: noDir, wantErr: true},
		{name: "sqlite without storage dir", cfg: config.StoreConfig{Type: "sqlite"}, storageDir: noDir, wantErr: true},
		{name: "unknown type", cfg: config.StoreConfig{Type: "redis"}, storageDir: tempDir, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.storageDir(t)
			got, err := NewStoreFromConfig(tt.cfg, dir)

			if tt.wantErr {
				if err == nil {
					t.Error("NewStoreFromConfig() expected error, got nil")
				}
				if got != nil {
					t.Error("NewStoreFromConfig() should return nil on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewStoreFromConfig() unexpected error: %v", err)
			}
			defer got.Close()

			if tt.wantFile != "" {
				if _, err := os.Stat(filepath.Join(dir, tt.wantFile)); err != nil {
					t.Errorf("expected %s to exist: %v", tt.wantFile, err)
				}
			}
		})
	}
}

func tempDir(t *testing.T) string { return filepath.Join(t.TempDir(), "storage") }
func noDir(t *testing.T) string   { return "" }
