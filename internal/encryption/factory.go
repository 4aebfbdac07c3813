package encryption

import (
	"fmt"

	"guardian/internal/config"
)

// NewEncryptorFromConfig creates an encryptor based on the configuration type.
// Type "none" (or empty) returns a nil encryptor and snapshot blobs are stored
// compressed but unencrypted.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (KeyedEncryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
