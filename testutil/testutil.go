// Package testutil provides deterministic random envelope generators for
// tests and benchmarks.
package testutil

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/hupe1980/envgo/digest"
	"github.com/hupe1980/envgo/envelope"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	r.rand.Read(b)
	return b
}

// Digest returns a pseudo-random digest.
func (r *RNG) Digest() digest.Digest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b [digest.Size]byte
	r.rand.Read(b[:])
	return digest.Digest(b)
}

// typeNames is the pool of synthetic record types generators draw from.
var typeNames = []string{"Author", "Post", "Tag", "Comment", "Page"}

// value picks a random index value across all kinds.
func (r *RNG) value() envelope.Value {
	switch r.Intn(6) {
	case 0:
		return envelope.String(fmt.Sprintf("value-%d", r.Intn(100)))
	case 1:
		return envelope.Int64(int64(r.Intn(10000)))
	case 2:
		return envelope.Float64(float64(r.Intn(10000)) / 7)
	case 3:
		return envelope.Bool(r.Intn(2) == 0)
	case 4:
		return envelope.Hash(r.Digest())
	default:
		return envelope.Timestamp(1700000000 + int64(r.Intn(1000000)))
	}
}

// RandomEnvelope builds one random envelope. targets, when non-empty,
// supplies relationship targets so generated sets form a connected graph.
func (r *RNG) RandomEnvelope(targets []digest.Digest) *envelope.Envelope {
	name := typeNames[r.Intn(len(typeNames))]
	b := envelope.New(digest.Sum([]byte(name)), r.Bytes(1+r.Intn(64))).
		TypeName(name)

	for i, n := 0, r.Intn(4); i < n; i++ {
		b.IndexField(fmt.Sprintf("field_%d", r.Intn(5)), r.value())
	}

	if len(targets) > 0 {
		for i, n := 0, r.Intn(3); i < n; i++ {
			relType := []string{"author", "tag", "parent"}[r.Intn(3)]
			b.Relationship(relType, targets[r.Intn(len(targets))])
		}
	}

	if r.Intn(10) == 0 {
		b.CreatedAt(1700000000 + int64(r.Intn(1000000)))
	}

	env, err := b.Build()
	if err != nil {
		panic(err)
	}
	return env
}

// RandomEnvelopes builds n random envelopes. Later envelopes may reference
// the digests of earlier ones.
func (r *RNG) RandomEnvelopes(n int) []*envelope.Envelope {
	var targets []digest.Digest
	out := make([]*envelope.Envelope, 0, n)
	for i := 0; i < n; i++ {
		env := r.RandomEnvelope(targets)
		out = append(out, env)
		if r.Intn(2) == 0 {
			targets = append(targets, r.Digest())
		}
	}
	return out
}
