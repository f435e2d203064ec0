// Package envgo provides an embedded content-addressed envelope store for Go.
//
// Envelopes are immutable records with a cryptographic identity: the digest
// of an envelope is the BLAKE3 hash of its canonical binary encoding, so
// identical content always yields the identical digest and is stored once.
// Alongside the object store, envgo maintains a derived index engine for
// type, field, relationship and reverse-reference queries, backed by
// Roaring bitmaps.
//
// # Quick Start
//
//	ctx := context.Background()
//	es := envgo.New()
//
//	authorType := digest.Sum([]byte("Author"))
//	author, _ := envelope.New(authorType, []byte(`{"name":"Alice"}`)).
//	    TypeName("Author").
//	    IndexField("name", envelope.String("Alice")).
//	    Build()
//
//	authorHash, _ := es.Put(ctx, author)
//
//	post, _ := envelope.New(digest.Sum([]byte("Post")), []byte("...")).
//	    Relationship("author", authorHash).
//	    Build()
//	postHash, _ := es.Put(ctx, post)
//
//	es.ByRelationship(ctx, "author", authorHash) // -> [postHash]
//	es.ReferencesTo(ctx, authorHash)             // -> [postHash]
//
// # Versioning
//
// Envelopes link to prior versions through the previous digest. Because a
// new version embeds the old digest in its hashed content, versions never
// collide and prior versions stay intact:
//
//	v2, _ := envelope.New(authorType, newPayload).Previous(authorHash).Build()
//	v2Hash, _ := es.Put(ctx, v2)
//	chain, _ := es.VersionChain(ctx, v2Hash) // v2, then v1
//
// # Durability
//
// The store is memory-resident. Snapshot and Restore move the full
// envelope set through a blobstore.BlobStore (filesystem, MinIO, S3) with
// optional compression and checksum verification.
package envgo

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/envgo/blobstore"
	"github.com/hupe1980/envgo/codec"
	"github.com/hupe1980/envgo/digest"
	"github.com/hupe1980/envgo/envelope"
	"github.com/hupe1980/envgo/index"
	"github.com/hupe1980/envgo/resource"
	"github.com/hupe1980/envgo/snapshot"
	"github.com/hupe1980/envgo/store"
)

// EnvelopeStore combines the content-addressed object store with the
// derived index engine under one read-write lock, so a put is a single
// atomic step: encode, hash, insert, index. Readers never observe an
// envelope that is stored but not yet indexed.
type EnvelopeStore struct {
	mu       sync.RWMutex
	store    *store.Store
	index    *index.Index
	memBytes int64

	logger      *Logger
	metrics     MetricsCollector
	compression snapshot.Compression
	controller  *resource.Controller
}

// New creates an empty EnvelopeStore.
func New(optFns ...Option) *EnvelopeStore {
	o := applyOptions(optFns)
	return &EnvelopeStore{
		store:       store.New(),
		index:       index.New(),
		logger:      o.logger,
		metrics:     o.metricsCollector,
		compression: o.compression,
		controller:  o.controller,
	}
}

// Put stores the envelope and indexes it, returning its digest. Re-storing
// identical content is a no-op that returns the same digest. The only
// failure mode is a resource limit: ctx cancellation while waiting on the
// memory budget.
func (es *EnvelopeStore) Put(ctx context.Context, env *envelope.Envelope) (digest.Digest, error) {
	start := time.Now()
	d, err := es.put(ctx, env)
	es.metrics.RecordPut(time.Since(start), err)
	es.logger.LogPut(ctx, d, len(env.Payload), err)
	return d, err
}

func (es *EnvelopeStore) put(ctx context.Context, env *envelope.Envelope) (digest.Digest, error) {
	encoded := codec.Marshal(env)
	d := digest.Sum(encoded)

	if err := es.controller.AcquireMemory(ctx, int64(len(encoded))); err != nil {
		return d, err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	if es.store.Contains(d) {
		es.controller.ReleaseMemory(int64(len(encoded)))
		return d, nil
	}

	es.store.PutVerified(d, encoded)
	es.index.Add(d, env)
	es.memBytes += int64(len(encoded))
	return d, nil
}

// PutRaw ingests a canonical encoding under an externally supplied digest,
// verifying both the digest and the encoding before indexing.
func (es *EnvelopeStore) PutRaw(ctx context.Context, d digest.Digest, encoded []byte) error {
	start := time.Now()
	err := es.putRaw(ctx, d, encoded)
	es.metrics.RecordPut(time.Since(start), err)
	es.logger.LogPut(ctx, d, len(encoded), err)
	return err
}

func (es *EnvelopeStore) putRaw(ctx context.Context, d digest.Digest, encoded []byte) error {
	actual := digest.Sum(encoded)
	if actual != d {
		return &store.HashMismatchError{Expected: d, Actual: actual}
	}
	env, err := codec.Unmarshal(encoded)
	if err != nil {
		return err
	}

	if err := es.controller.AcquireMemory(ctx, int64(len(encoded))); err != nil {
		return err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	if es.store.Contains(d) {
		es.controller.ReleaseMemory(int64(len(encoded)))
		return nil
	}

	es.store.PutVerified(d, encoded)
	es.index.Add(d, env)
	es.memBytes += int64(len(encoded))
	return nil
}

// Get returns the envelope stored under d, or ErrNotFound.
func (es *EnvelopeStore) Get(ctx context.Context, d digest.Digest) (*envelope.Envelope, error) {
	start := time.Now()

	es.mu.RLock()
	env, err := es.store.Get(d)
	es.mu.RUnlock()

	err = translateError(err)
	es.metrics.RecordGet(time.Since(start), err)
	es.logger.LogGet(ctx, d, err)
	return env, err
}

// GetRaw returns the canonical encoding stored under d. The returned slice
// must not be modified.
func (es *EnvelopeStore) GetRaw(ctx context.Context, d digest.Digest) ([]byte, error) {
	start := time.Now()

	es.mu.RLock()
	encoded, err := es.store.GetRaw(d)
	es.mu.RUnlock()

	err = translateError(err)
	es.metrics.RecordGet(time.Since(start), err)
	es.logger.LogGet(ctx, d, err)
	return encoded, err
}

// Contains reports whether d is stored.
func (es *EnvelopeStore) Contains(d digest.Digest) bool {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.store.Contains(d)
}

// Remove deletes the envelope stored under d and retracts it from the
// index. Returns ErrNotFound if d is not stored. Envelopes referencing the
// removed digest keep their relationships; those lookups simply dangle.
func (es *EnvelopeStore) Remove(ctx context.Context, d digest.Digest) error {
	start := time.Now()
	err := es.remove(d)
	es.metrics.RecordRemove(time.Since(start), err)
	es.logger.LogRemove(ctx, d, err)
	return err
}

func (es *EnvelopeStore) remove(d digest.Digest) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	encoded, err := es.store.GetRaw(d)
	if err != nil {
		return translateError(err)
	}
	env, err := codec.Unmarshal(encoded)
	if err != nil {
		return err
	}

	es.store.Delete(d)
	es.index.Remove(d, env)
	es.memBytes -= int64(len(encoded))
	es.controller.ReleaseMemory(int64(len(encoded)))
	return nil
}

// Len returns the number of stored envelopes.
func (es *EnvelopeStore) Len() int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.store.Len()
}

// IsEmpty reports whether the store holds no envelopes.
func (es *EnvelopeStore) IsEmpty() bool {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.store.IsEmpty()
}

// Digests returns the digests of all stored envelopes in unspecified
// order.
func (es *EnvelopeStore) Digests() []digest.Digest {
	es.mu.RLock()
	defer es.mu.RUnlock()

	out := make([]digest.Digest, 0, es.store.Len())
	for d := range es.store.Digests() {
		out = append(out, d)
	}
	return out
}

// ByType returns the digests of all envelopes with the given type hash.
func (es *EnvelopeStore) ByType(ctx context.Context, typeHash digest.Digest) []digest.Digest {
	start := time.Now()

	es.mu.RLock()
	out := es.index.ByType(typeHash)
	es.mu.RUnlock()

	es.metrics.RecordQuery("by_type", len(out), time.Since(start))
	es.logger.LogQuery(ctx, "by_type", len(out))
	return out
}

// ByField returns the digests of all envelopes whose index field key holds
// the given string value.
func (es *EnvelopeStore) ByField(ctx context.Context, key, value string) []digest.Digest {
	return es.ByFieldValue(ctx, key, envelope.String(value))
}

// ByFieldValue is the generalized field lookup over any value kind.
func (es *EnvelopeStore) ByFieldValue(ctx context.Context, key string, value envelope.Value) []digest.Digest {
	start := time.Now()

	es.mu.RLock()
	out := es.index.ByFieldValue(key, value)
	es.mu.RUnlock()

	es.metrics.RecordQuery("by_field", len(out), time.Since(start))
	es.logger.LogQuery(ctx, "by_field", len(out))
	return out
}

// ByRelationship returns the digests of all envelopes with a relationship
// of the given type to target.
func (es *EnvelopeStore) ByRelationship(ctx context.Context, relType string, target digest.Digest) []digest.Digest {
	start := time.Now()

	es.mu.RLock()
	out := es.index.ByRelationship(relType, target)
	es.mu.RUnlock()

	es.metrics.RecordQuery("by_relationship", len(out), time.Since(start))
	es.logger.LogQuery(ctx, "by_relationship", len(out))
	return out
}

// ReferencesTo returns the digests of all envelopes with any relationship
// to target.
func (es *EnvelopeStore) ReferencesTo(ctx context.Context, target digest.Digest) []digest.Digest {
	start := time.Now()

	es.mu.RLock()
	out := es.index.ReferencesTo(target)
	es.mu.RUnlock()

	es.metrics.RecordQuery("references_to", len(out), time.Since(start))
	es.logger.LogQuery(ctx, "references_to", len(out))
	return out
}

// Version is one step of a version chain.
type Version struct {
	Digest   digest.Digest
	Envelope *envelope.Envelope
}

// VersionChain walks previous links starting at d, newest first. The walk
// stops at an envelope without a previous link, at a dangling link whose
// target is not stored, or on a cycle. The starting digest must exist.
func (es *EnvelopeStore) VersionChain(ctx context.Context, d digest.Digest) ([]Version, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	seen := make(map[digest.Digest]bool)
	var chain []Version

	current := d
	for {
		if seen[current] {
			break
		}
		env, err := es.store.Get(current)
		if err != nil {
			if len(chain) == 0 {
				return nil, translateError(err)
			}
			break // dangling previous link
		}
		seen[current] = true
		chain = append(chain, Version{Digest: current, Envelope: env})
		if env.Previous == nil {
			break
		}
		current = *env.Previous
	}

	return chain, nil
}

// RebuildIndex derives a fresh index from the stored envelopes and swaps
// it in. The index is always a pure function of the store, so this is a
// consistency repair tool, not part of normal operation.
func (es *EnvelopeStore) RebuildIndex() error {
	es.mu.Lock()
	defer es.mu.Unlock()

	rebuilt := index.New()
	for d := range es.store.Digests() {
		env, err := es.store.Get(d)
		if err != nil {
			return err
		}
		rebuilt.Add(d, env)
	}
	es.index = rebuilt
	return nil
}

// Snapshot writes the full envelope set to the named blob. The snapshot
// observes an atomic view of the store.
func (es *EnvelopeStore) Snapshot(ctx context.Context, bs blobstore.BlobStore, name string) error {
	start := time.Now()

	es.mu.RLock()
	entries := es.store.Len()
	err := snapshot.Write(ctx, bs, name, es.store,
		snapshot.WithCompression(es.compression),
		snapshot.WithController(es.controller),
	)
	es.mu.RUnlock()

	es.metrics.RecordSnapshot(entries, time.Since(start), err)
	es.logger.LogSnapshot(ctx, name, entries, err)
	return err
}

// Restore replaces the current contents with the named snapshot. Entries
// are digest-verified and decoded in parallel before the swap; on any
// error the store is left unchanged.
func (es *EnvelopeStore) Restore(ctx context.Context, bs blobstore.BlobStore, name string) error {
	start := time.Now()
	entries, err := es.restore(ctx, bs, name)
	es.metrics.RecordRestore(entries, time.Since(start), err)
	es.logger.LogRestore(ctx, name, entries, err)
	return err
}

func (es *EnvelopeStore) restore(ctx context.Context, bs blobstore.BlobStore, name string) (int, error) {
	entries, err := snapshot.Read(ctx, bs, name,
		snapshot.WithController(es.controller),
	)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, e := range entries {
		total += int64(len(e.Data))
	}
	if err := es.controller.AcquireMemory(ctx, total); err != nil {
		return 0, err
	}

	restored := store.New()
	rebuilt := index.New()
	for _, e := range entries {
		restored.PutVerified(e.Digest, e.Data)
		rebuilt.Add(e.Digest, e.Envelope)
	}

	es.mu.Lock()
	old := es.memBytes
	es.store = restored
	es.index = rebuilt
	es.memBytes = total
	es.mu.Unlock()

	es.controller.ReleaseMemory(old)
	return len(entries), nil
}

// Stats is a point-in-time summary of store contents.
type Stats struct {
	// Envelopes is the number of stored envelopes.
	Envelopes int
	// EncodedBytes is the total size of all stored canonical encodings.
	EncodedBytes int64
}

// Stats returns current store statistics.
func (es *EnvelopeStore) Stats() Stats {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return Stats{
		Envelopes:    es.store.Len(),
		EncodedBytes: es.memBytes,
	}
}
