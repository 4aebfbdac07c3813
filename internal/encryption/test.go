package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// testMagic marks TestEncryptor output so tests can tell sealed blobs from plain ones.
var testMagic = []byte("GDTEST\x00\x01")

// TestEncryptor is a reversible stand-in for AgeEncryptor. Encrypt prefixes
// testMagic and Decrypt strips it. It starts unlocked. Once Setup has stored
// a passphrase, Unlock only accepts that passphrase.
type TestEncryptor struct {
	mu         sync.Mutex
	passphrase *string
	locked     bool
}

var _ KeyedEncryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.mu.Lock()
	e.passphrase = &passphrase
	e.mu.Unlock()
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, io.MultiReader(bytes.NewReader(testMagic), r)); err != nil {
		return fmt.Errorf("test encrypt: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Lock() {
	e.mu.Lock()
	e.locked = true
	e.mu.Unlock()
}

func (e *TestEncryptor) Unlock(passphrase string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.passphrase != nil && *e.passphrase != passphrase {
		return errors.New("test encryptor: wrong passphrase")
	}
	e.locked = false
	return nil
}

func (e *TestEncryptor) Decrypt(r io.Reader, w io.Writer) error {
	e.mu.Lock()
	locked := e.locked
	e.mu.Unlock()
	if locked {
		return ErrLocked
	}

	magic := make([]byte, len(testMagic))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, testMagic) {
		return errors.New("test decrypt: input was not produced by TestEncryptor")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("test decrypt: %w", err)
	}
	return nil
}

// IsConfigured is always true; there are no key files.
func (e *TestEncryptor) IsConfigured() bool {
	return true
}
