package envelope

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/envgo/digest"
)

// ErrInvalidEnvelope is returned by Builder.Build when required fields are
// missing or structurally invalid.
var ErrInvalidEnvelope = errors.New("invalid envelope")

// Builder constructs envelopes in stages. Required fields (type hash and
// payload) are passed to New; optional fields are added via chained setters.
// Build validates and returns the finished envelope.
//
// A Builder is single-use and not safe for concurrent use.
type Builder struct {
	env Envelope
}

// New starts a builder for an envelope with the given type hash and payload.
// A nil payload is normalized to an empty one.
func New(typeHash digest.Digest, payload []byte) *Builder {
	if payload == nil {
		payload = []byte{}
	}
	return &Builder{
		env: Envelope{
			TypeHash: typeHash,
			Payload:  payload,
		},
	}
}

// TypeName sets the human-readable type label.
func (b *Builder) TypeName(name string) *Builder {
	b.env.TypeName = name
	return b
}

// Relationship appends an outgoing edge of the given type to target.
func (b *Builder) Relationship(relType string, target digest.Digest) *Builder {
	b.env.Relationships = append(b.env.Relationships, Relationship{Type: relType, Target: target})
	return b
}

// IndexField sets an index field. Setting the same key twice keeps the last
// value.
func (b *Builder) IndexField(key string, value Value) *Builder {
	if b.env.Index == nil {
		b.env.Index = make(map[string]Value)
	}
	b.env.Index[key] = value
	return b
}

// Previous links the envelope to the prior version's digest.
func (b *Builder) Previous(d digest.Digest) *Builder {
	b.env.Previous = &d
	return b
}

// CreatedAt sets the creation timestamp in epoch seconds.
func (b *Builder) CreatedAt(epochSeconds int64) *Builder {
	b.env.CreatedAt = &epochSeconds
	return b
}

// Build validates the staged fields and returns the envelope.
//
// The returned envelope owns copies of the builder's slices and map, so
// reusing or mutating builder inputs afterwards cannot alias stored state.
func (b *Builder) Build() (*Envelope, error) {
	if b.env.TypeHash.IsZero() {
		return nil, fmt.Errorf("%w: type hash is unset", ErrInvalidEnvelope)
	}
	for _, rel := range b.env.Relationships {
		if rel.Target.IsZero() {
			return nil, fmt.Errorf("%w: relationship %q has an unset target", ErrInvalidEnvelope, rel.Type)
		}
	}
	for k, v := range b.env.Index {
		if v.Kind == KindInvalid {
			return nil, fmt.Errorf("%w: index field %q has an invalid value", ErrInvalidEnvelope, k)
		}
	}

	env := b.env
	env.Relationships = slices.Clone(env.Relationships)
	if env.Index != nil {
		env.Index = maps.Clone(env.Index)
	}
	env.Payload = slices.Clone(env.Payload)
	return &env, nil
}
