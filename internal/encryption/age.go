package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"

	"guardian/internal/config"
	gfs "guardian/internal/fs"
)

// AgeEncryptor seals snapshot blobs to an X25519 recipient. The recipient
// file is plain text. The identity file is itself an age file sealed with
// the passphrase (scrypt), so only Decrypt ever needs the passphrase.
type AgeEncryptor struct {
	recipientFile string
	identityFile  string

	mu        sync.Mutex
	recipient age.Recipient
	identity  age.Identity
}

var _ KeyedEncryptor = (*AgeEncryptor)(nil)

func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		recipientFile: cfg.PublicKeyPath,
		identityFile:  cfg.PrivateKeyPath,
	}
}

// Setup creates a fresh key pair. It refuses to replace existing keys.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if e.IsConfigured() {
		return fmt.Errorf("keys already exist at %s", filepath.Dir(e.identityFile))
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	sealed, err := sealWithPassphrase(passphrase, []byte(id.String()+"\n"))
	if err != nil {
		return err
	}

	if err := writeKeyFile(e.identityFile, sealed, 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := writeKeyFile(e.recipientFile, []byte(id.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	e.mu.Lock()
	e.recipient = id.Recipient()
	e.mu.Unlock()
	return nil
}

func writeKeyFile(name string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(name), 0700); err != nil {
		return err
	}
	_, err := gfs.WriteFileAtomic(name, bytes.NewReader(data), mode)
	return err
}

func sealWithPassphrase(passphrase string, plaintext []byte) ([]byte, error) {
	r, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving key from passphrase: %w", err)
	}
	var out bytes.Buffer
	w, err := age.Encrypt(&out, r)
	if err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}
	return out.Bytes(), nil
}

// Encrypt streams r to w sealed to the public key. It works while locked.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	recipient, err := e.publicKey()
	if err != nil {
		return err
	}
	sealer, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("starting encryption: %w", err)
	}
	if _, err := io.Copy(sealer, r); err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}
	if err := sealer.Close(); err != nil {
		return fmt.Errorf("finishing encryption: %w", err)
	}
	return nil
}

// publicKey loads the recipient file once and caches the result.
func (e *AgeEncryptor) publicKey() (age.Recipient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recipient != nil {
		return e.recipient, nil
	}

	data, err := os.ReadFile(e.recipientFile)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	r, err := age.ParseX25519Recipient(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing public key %s: %w", e.recipientFile, err)
	}
	e.recipient = r
	return r, nil
}

// Unlock opens the identity file with passphrase and keeps the identity
// in memory until Lock.
func (e *AgeEncryptor) Unlock(passphrase string) error {
	sealed, err := os.ReadFile(e.identityFile)
	if err != nil {
		return fmt.Errorf("reading private key: %w", err)
	}
	pass, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("deriving key from passphrase: %w", err)
	}
	plain, err := age.Decrypt(bytes.NewReader(sealed), pass)
	if err != nil {
		return fmt.Errorf("opening private key: %w", err)
	}
	ids, err := age.ParseIdentities(plain)
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}
	if len(ids) == 0 {
		return errors.New("private key file holds no identity")
	}

	e.mu.Lock()
	e.identity = ids[0]
	e.mu.Unlock()
	return nil
}

// Lock forgets the unlocked identity.
func (e *AgeEncryptor) Lock() {
	e.mu.Lock()
	e.identity = nil
	e.mu.Unlock()
}

// Decrypt streams the plaintext of r to w. It returns ErrLocked until Unlock succeeds.
func (e *AgeEncryptor) Decrypt(r io.Reader, w io.Writer) error {
	e.mu.Lock()
	id := e.identity
	e.mu.Unlock()
	if id == nil {
		return ErrLocked
	}

	plain, err := age.Decrypt(r, id)
	if err != nil {
		return fmt.Errorf("starting decryption: %w", err)
	}
	if _, err := io.Copy(w, plain); err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}
	return nil
}

// IsConfigured reports whether both key files are present.
func (e *AgeEncryptor) IsConfigured() bool {
	for _, name := range []string{e.recipientFile, e.identityFile} {
		if _, err := os.Stat(name); err != nil {
			return false
		}
	}
	return true
}
