package testutil

import (
	"crypto/sha256"
	"encoding/hex"

	"guardian/internal/guardian"
	"guardian/internal/vault"
)

// NewTestVault returns an empty in-memory vault.
func NewTestVault() guardian.Vault {
	return vault.NewMemoryVault("test-vault")
}

// SHA256Hex is the content key a snapshot stores data under.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
