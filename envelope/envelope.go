// Package envelope defines the in-memory model of a stored object: a
// self-describing, immutable record with a type reference, typed
// relationships to other envelopes, index fields for queries, an optional
// previous-version link, and an opaque payload.
//
// Envelopes are values; once handed to a store they are never mutated.
// "Updating" means building a new envelope whose Previous field points at the
// prior version's digest.
package envelope

import (
	"slices"
	"strings"

	"github.com/hupe1980/envgo/digest"
)

// Relationship is a typed, directed edge to another envelope.
//
// Multiple relationships of the same type to different targets are allowed
// (several "tag" edges, say), and duplicate (Type, Target) pairs are kept
// as-is rather than deduplicated.
type Relationship struct {
	// Type names the edge, e.g. "author", "parent", "tag".
	Type string
	// Target is the digest of the envelope the edge points at.
	Target digest.Digest
}

// Envelope is the in-memory representation of a stored object.
//
// The payload is opaque to the store; any structured decoding of it is a
// caller concern.
type Envelope struct {
	// TypeHash identifies the schema/type of the payload. Required.
	TypeHash digest.Digest

	// TypeName is a human-readable type label, display only. The canonical
	// encoding conflates the empty string with "absent".
	TypeName string

	// Relationships holds outgoing edges in insertion order. Insertion
	// order does not affect identity: the canonical encoding sorts edges,
	// so read-back returns them in canonical order.
	Relationships []Relationship

	// Index holds the queryable fields. Keys are unique; insertion order
	// is irrelevant. Index fields are part of content identity.
	Index map[string]Value

	// Previous links to the prior version of the same logical object,
	// forming a version chain. Nil for the first version.
	Previous *digest.Digest

	// CreatedAt is an optional creation timestamp in epoch seconds.
	CreatedAt *int64

	// Payload is the opaque payload bytes.
	Payload []byte
}

// CanonicalRelationships returns the relationships sorted by (Type, Target
// bytes) ascending, the order used by the canonical encoding. The receiver
// is not modified.
func (e *Envelope) CanonicalRelationships() []Relationship {
	rels := slices.Clone(e.Relationships)
	slices.SortFunc(rels, CompareRelationships)
	return rels
}

// SortedIndexKeys returns the index field keys in ascending order.
func (e *Envelope) SortedIndexKeys() []string {
	keys := make([]string, 0, len(e.Index))
	for k := range e.Index {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// CompareRelationships orders relationships by (Type, Target bytes)
// ascending, the canonical encoding order.
func CompareRelationships(a, b Relationship) int {
	if c := strings.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return a.Target.Compare(b.Target)
}

// Equal reports whether two envelopes carry identical content.
//
// Relationship order is compared canonically, so envelopes differing only in
// edge insertion order are equal, matching the identity contract of the
// canonical encoding.
func (e *Envelope) Equal(other *Envelope) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.TypeHash != other.TypeHash || e.TypeName != other.TypeName {
		return false
	}
	if !slices.Equal(e.CanonicalRelationships(), other.CanonicalRelationships()) {
		return false
	}
	if len(e.Index) != len(other.Index) {
		return false
	}
	for k, v := range e.Index {
		if ov, ok := other.Index[k]; !ok || !v.Equal(ov) {
			return false
		}
	}
	if !optionalDigestEqual(e.Previous, other.Previous) {
		return false
	}
	if !optionalInt64Equal(e.CreatedAt, other.CreatedAt) {
		return false
	}
	return slices.Equal(e.Payload, other.Payload)
}

func optionalDigestEqual(a, b *digest.Digest) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func optionalInt64Equal(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
