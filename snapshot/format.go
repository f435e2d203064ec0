package snapshot

import (
	"errors"
	"fmt"
)

const (
	// MagicNumber identifies envelope snapshot files (ASCII: "ENV0").
	MagicNumber = 0x454E5630
	// Version is the current snapshot format version (v1.0.0).
	Version = 0x00010000

	// headerSize is magic(4) + version(4) + compression(1) + reserved(3) +
	// count(8).
	headerSize = 20
	// trailerSize is the CRC32C of everything before it.
	trailerSize = 4
)

var (
	ErrInvalidMagic       = errors.New("invalid magic number")
	ErrInvalidVersion     = errors.New("unsupported version")
	ErrInvalidCompression = errors.New("unknown compression codec")
	ErrTruncated          = errors.New("snapshot truncated")
)

// ChecksumMismatchError is returned when the snapshot trailer checksum does
// not match the stored bytes.
type ChecksumMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}
