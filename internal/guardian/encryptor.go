package guardian

import "io"

// Encryptor protects snapshot blobs at rest.
// Content is encrypted after compression and decrypted before decompression.
type Encryptor interface {
	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Decrypt reads ciphertext from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
