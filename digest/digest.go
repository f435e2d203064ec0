// Package digest implements the 256-bit content identifier used for
// envelope addressing.
//
// Digests are BLAKE3-256 hashes. The digest of an envelope is always computed
// over its canonical encoding, so two envelopes with identical canonical bytes
// share one digest.
package digest

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Size is the digest length in bytes.
const Size = 32

// Digest is a 32-byte BLAKE3 content hash. Total order is defined by byte
// content; the zero value is never produced by hashing and marks "unset".
type Digest [Size]byte

// Sum computes the digest of data.
func Sum(data []byte) Digest {
	return blake3.Sum256(data)
}

// SumParts computes the digest of the concatenation of all parts without
// materializing a single buffer.
func SumParts(parts ...[]byte) Digest {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// FromBytes builds a Digest from an exact 32-byte slice.
func FromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != Size {
		return d, fmt.Errorf("digest is %d bytes, want %d", len(b), Size)
	}
	copy(d[:], b)
	return d, nil
}

// FromHex parses a 64-character lowercase or uppercase hex string.
func FromHex(s string) (Digest, error) {
	var d Digest
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parsing digest hex: %w", err)
	}
	if len(decoded) != Size {
		return d, fmt.Errorf("digest hex is %d bytes, want %d", len(decoded), Size)
	}
	copy(d[:], decoded)
	return d, nil
}

// Bytes returns the raw 32 bytes.
func (d Digest) Bytes() []byte {
	return d[:]
}

// Hex returns the canonical lowercase hex form.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 8 hex characters. Display only; never use it for
// equality or lookup.
func (d Digest) Short() string {
	return d.Hex()[:8]
}

// IsZero reports whether d is the unset zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Compare returns -1, 0 or +1 ordering digests by byte content.
func (d Digest) Compare(other Digest) int {
	return bytes.Compare(d[:], other[:])
}

// Less reports whether d sorts before other.
func (d Digest) Less(other Digest) bool {
	return d.Compare(other) < 0
}

// String implements fmt.Stringer.
func (d Digest) String() string {
	return d.Hex()
}
