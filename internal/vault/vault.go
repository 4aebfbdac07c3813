package vault

import (
	"fmt"
	"io"
	"strings"
)

// exactSizeReader fails the read that reveals the stream is not exactly size bytes.
type exactSizeReader struct {
	r    io.Reader
	size int64
	n    int64
}

func newExactSizeReader(r io.Reader, size int64) *exactSizeReader {
	return &exactSizeReader{r: r, size: size}
}

func (e *exactSizeReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	e.n += int64(n)
	if e.n > e.size {
		return n, fmt.Errorf("size mismatch: expected %d bytes, got more", e.size)
	}
	if err == io.EOF && e.n != e.size {
		return n, fmt.Errorf("size mismatch: expected %d bytes, got %d", e.size, e.n)
	}
	return n, err
}

// validKey rejects names that could address something outside the vault layout.
func validKey(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid vault key: %q", name)
	}
	return nil
}
