package envgo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/envgo/blobstore"
	"github.com/hupe1980/envgo/codec"
	"github.com/hupe1980/envgo/digest"
	"github.com/hupe1980/envgo/envelope"
	"github.com/hupe1980/envgo/resource"
	"github.com/hupe1980/envgo/snapshot"
	"github.com/hupe1980/envgo/store"
	"github.com/hupe1980/envgo/testutil"
)

func mustBuild(t *testing.T, b *envelope.Builder) *envelope.Envelope {
	t.Helper()
	env, err := b.Build()
	require.NoError(t, err)
	return env
}

func TestEnvelopeStore_PutGet(t *testing.T) {
	ctx := context.Background()
	es := New()

	env := mustBuild(t, envelope.New(digest.Sum([]byte("Doc")), []byte("payload")).
		TypeName("Doc").
		IndexField("title", envelope.String("Hello")))

	d, err := es.Put(ctx, env)
	require.NoError(t, err)
	require.True(t, es.Contains(d))
	require.Equal(t, 1, es.Len())

	got, err := es.Get(ctx, d)
	require.NoError(t, err)
	require.True(t, env.Equal(got))
}

func TestEnvelopeStore_Deduplication(t *testing.T) {
	ctx := context.Background()
	es := New()

	typeHash := digest.Sum([]byte("Doc"))
	e1 := mustBuild(t, envelope.New(typeHash, []byte("same")))
	e2 := mustBuild(t, envelope.New(typeHash, []byte("same")))

	d1, err := es.Put(ctx, e1)
	require.NoError(t, err)
	d2, err := es.Put(ctx, e2)
	require.NoError(t, err)

	require.Equal(t, d1, d2)
	require.Equal(t, 1, es.Len())
}

func TestEnvelopeStore_GetNotFound(t *testing.T) {
	ctx := context.Background()
	es := New()

	_, err := es.Get(ctx, digest.Sum([]byte("missing")))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = es.GetRaw(ctx, digest.Sum([]byte("missing")))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEnvelopeStore_NilOptionsDisable(t *testing.T) {
	ctx := context.Background()
	es := New(WithLogger(nil), WithMetricsCollector(nil))

	env := mustBuild(t, envelope.New(digest.Sum([]byte("Doc")), []byte("payload")))

	d, err := es.Put(ctx, env)
	require.NoError(t, err)

	got, err := es.Get(ctx, d)
	require.NoError(t, err)
	require.True(t, env.Equal(got))
}

func TestEnvelopeStore_PutRawMalformed(t *testing.T) {
	ctx := context.Background()
	es := New()

	// A minimal envelope whose index field count claims more fields than
	// the buffer holds. The digest matches the bytes, so the decode check
	// is the only line of defense.
	env := mustBuild(t, envelope.New(digest.Sum([]byte("Doc")), nil))
	raw := codec.Marshal(env)
	raw[32+4+4] = 0xFF
	raw[32+4+5] = 0xFF
	raw[32+4+6] = 0xFF
	raw[32+4+7] = 0xFF

	err := es.PutRaw(ctx, digest.Sum(raw), raw)
	var de *codec.DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, 0, es.Len())
}

func TestEnvelopeStore_Remove(t *testing.T) {
	ctx := context.Background()
	es := New()

	typeHash := digest.Sum([]byte("Doc"))
	target := digest.Sum([]byte("target"))
	env := mustBuild(t, envelope.New(typeHash, []byte("x")).
		IndexField("status", envelope.String("active")).
		Relationship("ref", target))

	d, err := es.Put(ctx, env)
	require.NoError(t, err)

	require.NoError(t, es.Remove(ctx, d))
	require.False(t, es.Contains(d))
	require.Empty(t, es.ByType(ctx, typeHash))
	require.Empty(t, es.ByField(ctx, "status", "active"))
	require.Empty(t, es.ReferencesTo(ctx, target))

	require.ErrorIs(t, es.Remove(ctx, d), ErrNotFound)
}

func TestEnvelopeStore_Queries(t *testing.T) {
	ctx := context.Background()
	es := New()

	authorType := digest.Sum([]byte("Author"))
	postType := digest.Sum([]byte("Post"))

	alice := mustBuild(t, envelope.New(authorType, []byte("Alice")).
		IndexField("name", envelope.String("Alice")))
	aliceHash, err := es.Put(ctx, alice)
	require.NoError(t, err)

	post := mustBuild(t, envelope.New(postType, []byte("Post 1")).
		IndexField("year", envelope.Int64(2026)).
		Relationship("author", aliceHash))
	postHash, err := es.Put(ctx, post)
	require.NoError(t, err)

	require.ElementsMatch(t, []digest.Digest{aliceHash}, es.ByType(ctx, authorType))
	require.ElementsMatch(t, []digest.Digest{postHash}, es.ByType(ctx, postType))
	require.ElementsMatch(t, []digest.Digest{aliceHash}, es.ByField(ctx, "name", "Alice"))
	require.ElementsMatch(t, []digest.Digest{postHash}, es.ByFieldValue(ctx, "year", envelope.Int64(2026)))
	require.ElementsMatch(t, []digest.Digest{postHash}, es.ByRelationship(ctx, "author", aliceHash))
	require.ElementsMatch(t, []digest.Digest{postHash}, es.ReferencesTo(ctx, aliceHash))
}

func TestEnvelopeStore_VersionChain(t *testing.T) {
	ctx := context.Background()
	es := New()

	typeHash := digest.Sum([]byte("Doc"))

	v1 := mustBuild(t, envelope.New(typeHash, []byte("v1")))
	h1, err := es.Put(ctx, v1)
	require.NoError(t, err)

	v2 := mustBuild(t, envelope.New(typeHash, []byte("v2")).Previous(h1))
	h2, err := es.Put(ctx, v2)
	require.NoError(t, err)

	v3 := mustBuild(t, envelope.New(typeHash, []byte("v3")).Previous(h2))
	h3, err := es.Put(ctx, v3)
	require.NoError(t, err)

	chain, err := es.VersionChain(ctx, h3)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, h3, chain[0].Digest)
	require.Equal(t, h2, chain[1].Digest)
	require.Equal(t, h1, chain[2].Digest)
	require.Equal(t, []byte("v1"), chain[2].Envelope.Payload)
}

func TestEnvelopeStore_VersionChainDangling(t *testing.T) {
	ctx := context.Background()
	es := New()

	typeHash := digest.Sum([]byte("Doc"))
	missing := digest.Sum([]byte("never stored"))

	env := mustBuild(t, envelope.New(typeHash, []byte("v2")).Previous(missing))
	d, err := es.Put(ctx, env)
	require.NoError(t, err)

	chain, err := es.VersionChain(ctx, d)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	require.Equal(t, d, chain[0].Digest)

	_, err = es.VersionChain(ctx, missing)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEnvelopeStore_PutRaw(t *testing.T) {
	ctx := context.Background()
	es := New()

	env := mustBuild(t, envelope.New(digest.Sum([]byte("Doc")), []byte("payload")).
		IndexField("title", envelope.String("Hello")))
	encoded := codec.Marshal(env)
	d := digest.Sum(encoded)

	require.NoError(t, es.PutRaw(ctx, d, encoded))
	require.True(t, es.Contains(d))
	require.ElementsMatch(t, []digest.Digest{d}, es.ByField(ctx, "title", "Hello"))

	err := es.PutRaw(ctx, digest.Sum([]byte("wrong")), encoded)
	var hm *store.HashMismatchError
	require.ErrorAs(t, err, &hm)
}

func TestEnvelopeStore_RebuildIndexMatchesIncremental(t *testing.T) {
	ctx := context.Background()
	es := New()
	rng := testutil.NewRNG(42)

	envs := rng.RandomEnvelopes(200)
	digests := make([]digest.Digest, 0, len(envs))
	for _, env := range envs {
		d, err := es.Put(ctx, env)
		require.NoError(t, err)
		digests = append(digests, d)
	}

	// Remove a third to exercise retraction too.
	for i := 0; i < len(digests); i += 3 {
		if es.Contains(digests[i]) {
			require.NoError(t, es.Remove(ctx, digests[i]))
		}
	}

	// Capture incremental query results, rebuild, compare.
	type snapshotOfQueries struct {
		byType map[digest.Digest][]digest.Digest
	}
	before := snapshotOfQueries{byType: make(map[digest.Digest][]digest.Digest)}
	for _, name := range []string{"Author", "Post", "Tag", "Comment", "Page"} {
		th := digest.Sum([]byte(name))
		before.byType[th] = es.ByType(ctx, th)
	}

	require.NoError(t, es.RebuildIndex())

	for th, want := range before.byType {
		require.ElementsMatch(t, want, es.ByType(ctx, th))
	}
}

func TestEnvelopeStore_SnapshotRestore(t *testing.T) {
	codecs := map[string]snapshot.Compression{
		"none": snapshot.CompressionNone,
		"lz4":  snapshot.CompressionLZ4,
		"zstd": snapshot.CompressionZSTD,
	}

	for name, compression := range codecs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			bs := blobstore.NewMemoryStore()
			rng := testutil.NewRNG(7)

			src := New(WithCompression(compression))
			for _, env := range rng.RandomEnvelopes(100) {
				_, err := src.Put(ctx, env)
				require.NoError(t, err)
			}

			require.NoError(t, src.Snapshot(ctx, bs, "snap"))

			dst := New()
			require.NoError(t, dst.Restore(ctx, bs, "snap"))

			require.Equal(t, src.Len(), dst.Len())
			for _, d := range src.Digests() {
				require.True(t, dst.Contains(d))
				a, err := src.GetRaw(ctx, d)
				require.NoError(t, err)
				b, err := dst.GetRaw(ctx, d)
				require.NoError(t, err)
				require.Equal(t, a, b)
			}

			// The restored index answers queries identically.
			for _, typeName := range []string{"Author", "Post", "Tag"} {
				th := digest.Sum([]byte(typeName))
				require.ElementsMatch(t, src.ByType(ctx, th), dst.ByType(ctx, th))
			}
		})
	}
}

func TestEnvelopeStore_RestoreFailureLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	es := New()

	env := mustBuild(t, envelope.New(digest.Sum([]byte("Doc")), []byte("keep me")))
	d, err := es.Put(ctx, env)
	require.NoError(t, err)

	require.NoError(t, bs.Put(ctx, "bad", []byte("not a snapshot")))
	require.Error(t, es.Restore(ctx, bs, "bad"))

	require.True(t, es.Contains(d))
	require.Equal(t, 1, es.Len())
}

func TestEnvelopeStore_MemoryLimit(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 128})
	es := New(WithResourceController(rc))

	small := mustBuild(t, envelope.New(digest.Sum([]byte("Doc")), []byte("tiny")))
	_, err := es.Put(ctx, small)
	require.NoError(t, err)
	require.Greater(t, rc.MemoryUsage(), int64(0))

	// A payload beyond the budget blocks; with a canceled context the put
	// fails instead of waiting.
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	big := mustBuild(t, envelope.New(digest.Sum([]byte("Doc")), make([]byte, 4096)))
	_, err = es.Put(canceled, big)
	require.Error(t, err)

	// Removing returns the budget.
	usage := rc.MemoryUsage()
	require.NoError(t, es.Remove(ctx, mustDigest(small)))
	require.Less(t, rc.MemoryUsage(), usage)
}

func mustDigest(env *envelope.Envelope) digest.Digest {
	return digest.Sum(codec.Marshal(env))
}

func TestEnvelopeStore_Metrics(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	es := New(WithMetricsCollector(metrics))

	env := mustBuild(t, envelope.New(digest.Sum([]byte("Doc")), []byte("x")))
	d, err := es.Put(ctx, env)
	require.NoError(t, err)

	_, err = es.Get(ctx, d)
	require.NoError(t, err)
	_, err = es.Get(ctx, digest.Sum([]byte("missing")))
	require.Error(t, err)

	es.ByType(ctx, digest.Sum([]byte("Doc")))

	stats := metrics.GetStats()
	require.EqualValues(t, 1, stats.PutCount)
	require.EqualValues(t, 2, stats.GetCount)
	require.EqualValues(t, 1, stats.GetErrors)
	require.EqualValues(t, 1, stats.QueryCount)
	require.EqualValues(t, 1, stats.QueryResults)
}

func TestEnvelopeStore_Stats(t *testing.T) {
	ctx := context.Background()
	es := New()
	require.True(t, es.IsEmpty())

	env := mustBuild(t, envelope.New(digest.Sum([]byte("Doc")), []byte("x")))
	_, err := es.Put(ctx, env)
	require.NoError(t, err)

	stats := es.Stats()
	require.Equal(t, 1, stats.Envelopes)
	require.Greater(t, stats.EncodedBytes, int64(0))
	require.Len(t, es.Digests(), 1)
}
