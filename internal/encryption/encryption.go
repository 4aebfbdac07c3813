package encryption

import (
	"errors"

	"guardian/internal/guardian"
)

// ErrLocked is returned by Decrypt before the private key has been unlocked.
var ErrLocked = errors.New("encryptor is locked: private key not unlocked")

// KeyedEncryptor is a guardian.Encryptor backed by a key pair whose private
// half is protected by a passphrase. Encrypt only needs the public key, so
// snapshots can be taken unattended; Decrypt requires Unlock first.
type KeyedEncryptor interface {
	guardian.Encryptor

	// Setup generates and stores a new key pair protected by passphrase.
	Setup(passphrase string) error

	// Unlock loads the private key so Decrypt can be used.
	Unlock(passphrase string) error

	// Lock drops the unlocked private key.
	Lock()

	// IsConfigured reports whether a key pair exists.
	IsConfigured() bool
}
