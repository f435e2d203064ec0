// Package store implements the content-addressed object store: a map from
// digest to canonical-encoded envelope bytes.
//
// The digest of an entry is always the hash of its canonical encoding, never
// a separately computed structural hash, so identity and persisted bytes
// cannot diverge. The store deduplicates by construction: byte-identical
// encodings share one digest and one stored copy.
//
// Store is not safe for concurrent use; the envgo facade wraps it together
// with the index under a single read-write lock.
package store

import (
	"errors"
	"fmt"
	"iter"

	"github.com/hupe1980/envgo/codec"
	"github.com/hupe1980/envgo/digest"
	"github.com/hupe1980/envgo/envelope"
)

// ErrNotFound is returned when a Store cannot find a digest.
//
// This is a store-layer sentinel used internally; the envgo package may
// translate it into its public error contract.
var ErrNotFound = errors.New("not found")

// HashMismatchError reports an externally supplied digest that does not
// match the recomputed digest of the accompanying bytes.
type HashMismatchError struct {
	Expected digest.Digest
	Actual   digest.Digest
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch: expected %s, got %s", e.Expected.Short(), e.Actual.Short())
}

// Store maps digests to canonical-encoded envelope bytes.
type Store struct {
	objects map[digest.Digest][]byte
}

// New creates a new empty store.
func New() *Store {
	return &Store{
		objects: make(map[digest.Digest][]byte),
	}
}

// Put encodes the envelope, hashes the encoding and inserts it if absent.
// Re-storing identical content is a no-op that returns the same digest.
// Put never fails for an envelope produced by the builder.
func (s *Store) Put(env *envelope.Envelope) digest.Digest {
	encoded := codec.Marshal(env)
	d := digest.Sum(encoded)
	if _, ok := s.objects[d]; !ok {
		s.objects[d] = encoded
	}
	return d
}

// PutRaw inserts pre-encoded bytes under an externally supplied digest,
// recomputing the digest first. A divergent digest yields a
// HashMismatchError; bytes that do not decode as an envelope yield the
// codec's DecodeError. Used by snapshot restore.
func (s *Store) PutRaw(d digest.Digest, encoded []byte) error {
	actual := digest.Sum(encoded)
	if actual != d {
		return &HashMismatchError{Expected: d, Actual: actual}
	}
	if _, err := codec.Unmarshal(encoded); err != nil {
		return err
	}
	if _, ok := s.objects[d]; !ok {
		s.objects[d] = encoded
	}
	return nil
}

// PutVerified inserts pre-encoded bytes whose digest the caller has
// already recomputed and checked. Snapshot restore verifies entries in
// parallel before inserting them here.
func (s *Store) PutVerified(d digest.Digest, encoded []byte) {
	if _, ok := s.objects[d]; !ok {
		s.objects[d] = encoded
	}
}

// Get decodes and returns the envelope stored under d.
func (s *Store) Get(d digest.Digest) (*envelope.Envelope, error) {
	encoded, ok := s.objects[d]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, d.Short())
	}
	return codec.Unmarshal(encoded)
}

// GetRaw returns the canonical encoding stored under d. The returned slice
// must not be modified.
func (s *Store) GetRaw(d digest.Digest) ([]byte, error) {
	encoded, ok := s.objects[d]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, d.Short())
	}
	return encoded, nil
}

// Delete removes the entry stored under d. Removing an absent digest is a
// no-op.
func (s *Store) Delete(d digest.Digest) {
	delete(s.objects, d)
}

// Contains reports whether d is stored.
func (s *Store) Contains(d digest.Digest) bool {
	_, ok := s.objects[d]
	return ok
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	return len(s.objects)
}

// IsEmpty reports whether the store holds no objects.
func (s *Store) IsEmpty() bool {
	return len(s.objects) == 0
}

// Digests iterates over all stored digests in unspecified order.
func (s *Store) Digests() iter.Seq[digest.Digest] {
	return func(yield func(digest.Digest) bool) {
		for d := range s.objects {
			if !yield(d) {
				return
			}
		}
	}
}
