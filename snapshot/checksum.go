package snapshot

import (
	"hash"
	"io"

	ihash "github.com/hupe1980/envgo/internal/hash"
)

// checksumWriter wraps an io.Writer and keeps a running CRC32C of every
// byte passed through. CRC32C detects accidental corruption only; the
// per-envelope digests cover content integrity.
type checksumWriter struct {
	w    io.Writer
	hash hash.Hash32
}

func newChecksumWriter(w io.Writer) *checksumWriter {
	return &checksumWriter{
		w:    w,
		hash: ihash.NewCRC32C(),
	}
}

func (cw *checksumWriter) Write(p []byte) (int, error) {
	if _, err := cw.hash.Write(p); err != nil {
		return 0, err
	}
	return cw.w.Write(p)
}

func (cw *checksumWriter) Sum() uint32 {
	return cw.hash.Sum32()
}
