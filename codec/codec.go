// Package codec implements the canonical binary encoding of envelopes.
//
// The encoding is the single source of truth for both persistence and
// content hashing: an envelope's digest is always the hash of Marshal's
// output, so the two can never diverge.
//
// Envgo intentionally has exactly one codec: if the bytes changed, every
// content address would change with them. The format is little-endian
// throughout, with unsigned 32-bit length prefixes on every variable-length
// field so decoding never scans for delimiters. Relationships are encoded
// sorted by (type, target bytes) and index fields sorted by key, making the
// output independent of caller insertion order.
package codec

import (
	"errors"
	"fmt"
)

// Sentinel causes carried inside a DecodeError.
var (
	// ErrShortBuffer indicates a length prefix or fixed-width field
	// extends past the end of the buffer.
	ErrShortBuffer = errors.New("buffer too short")

	// ErrUnknownTag indicates an index value carries an unknown type tag.
	ErrUnknownTag = errors.New("unknown value tag")

	// ErrTrailingBytes indicates the buffer continues past a complete
	// envelope.
	ErrTrailingBytes = errors.New("trailing bytes after envelope")
)

// DecodeError reports a malformed or truncated buffer, naming the field
// being read when decoding failed.
type DecodeError struct {
	// Field is the envelope field being decoded, e.g. "relationship count".
	Field string
	// Err is the underlying cause.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(field string, err error) error {
	return &DecodeError{Field: field, Err: err}
}
