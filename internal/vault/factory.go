package vault

import (
	"context"
	"fmt"

	"guardian/internal/config"
	"guardian/internal/guardian"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
// defaultRoot is used by filesystem vaults that do not set fs_vault_root.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig, defaultRoot string) (guardian.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		v, err := NewS3Vault(ctx, cfg.Name, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		root := cfg.FSVaultRoot
		if root == "" {
			root = defaultRoot
		}
		if root == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(cfg.Name, root)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
