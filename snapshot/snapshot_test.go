package snapshot

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/envgo/blobstore"
	"github.com/hupe1980/envgo/digest"
	"github.com/hupe1980/envgo/envelope"
	ihash "github.com/hupe1980/envgo/internal/hash"
	"github.com/hupe1980/envgo/resource"
	"github.com/hupe1980/envgo/store"
)

func seedStore(t *testing.T, n int) *store.Store {
	t.Helper()
	st := store.New()
	typeHash := digest.Sum([]byte("Doc"))
	for i := 0; i < n; i++ {
		env, err := envelope.New(typeHash, []byte{byte(i), byte(i >> 8)}).
			TypeName("Doc").
			IndexField("seq", envelope.Int64(int64(i))).
			Build()
		require.NoError(t, err)
		st.Put(env)
	}
	return st
}

func TestSnapshot_RoundTrip(t *testing.T) {
	codecs := map[string]Compression{
		"none": CompressionNone,
		"lz4":  CompressionLZ4,
		"zstd": CompressionZSTD,
	}

	for name, compression := range codecs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			bs := blobstore.NewMemoryStore()
			st := seedStore(t, 50)

			require.NoError(t, Write(ctx, bs, "snap", st, WithCompression(compression)))

			entries, err := Read(ctx, bs, "snap")
			require.NoError(t, err)
			require.Len(t, entries, st.Len())

			for _, e := range entries {
				require.True(t, st.Contains(e.Digest))
				raw, err := st.GetRaw(e.Digest)
				require.NoError(t, err)
				require.Equal(t, raw, e.Data)
				require.NotNil(t, e.Envelope)
				require.Equal(t, digest.Sum([]byte("Doc")), e.Envelope.TypeHash)
			}
		})
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	st := seedStore(t, 20)

	require.NoError(t, Write(ctx, bs, "a", st))
	require.NoError(t, Write(ctx, bs, "b", st))

	a, err := blobstore.ReadAll(ctx, bs, "a")
	require.NoError(t, err)
	b, err := blobstore.ReadAll(ctx, bs, "b")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestSnapshot_EmptyStore(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	require.NoError(t, Write(ctx, bs, "empty", store.New()))

	entries, err := Read(ctx, bs, "empty")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSnapshot_ChecksumDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	st := seedStore(t, 10)

	require.NoError(t, Write(ctx, bs, "snap", st))

	data, err := blobstore.ReadAll(ctx, bs, "snap")
	require.NoError(t, err)

	// Flip one bit in the body.
	data[headerSize+3] ^= 0x01
	require.NoError(t, bs.Put(ctx, "snap", data))

	_, err = Read(ctx, bs, "snap")
	var cm *ChecksumMismatchError
	require.ErrorAs(t, err, &cm)
}

func TestSnapshot_DigestVerification(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	st := seedStore(t, 1)

	require.NoError(t, Write(ctx, bs, "snap", st))

	data, err := blobstore.ReadAll(ctx, bs, "snap")
	require.NoError(t, err)

	// Corrupt one byte of the stored digest, then fix up the trailer so
	// the damage survives the checksum and reaches digest verification.
	data[headerSize+blockHeaderSize] ^= 0xFF
	sum := ihash.CRC32C(data[:len(data)-trailerSize])
	binary.LittleEndian.PutUint32(data[len(data)-trailerSize:], sum)
	require.NoError(t, bs.Put(ctx, "snap", data))

	_, err = Read(ctx, bs, "snap")
	var hm *store.HashMismatchError
	require.ErrorAs(t, err, &hm)
}

func TestSnapshot_OversizedCount(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	st := seedStore(t, 1)

	require.NoError(t, Write(ctx, bs, "snap", st))

	data, err := blobstore.ReadAll(ctx, bs, "snap")
	require.NoError(t, err)

	// Patch in an entry count the body cannot possibly hold, then fix up
	// the trailer so the header survives the checksum. Read must reject
	// the count before sizing anything from it.
	binary.LittleEndian.PutUint64(data[12:], 1<<62)
	sum := ihash.CRC32C(data[:len(data)-trailerSize])
	binary.LittleEndian.PutUint32(data[len(data)-trailerSize:], sum)
	require.NoError(t, bs.Put(ctx, "snap", data))

	_, err = Read(ctx, bs, "snap")
	require.ErrorIs(t, err, ErrTruncated)
}

func TestSnapshot_Truncated(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	require.NoError(t, bs.Put(ctx, "snap", []byte{1, 2, 3}))

	_, err := Read(ctx, bs, "snap")
	require.ErrorIs(t, err, ErrTruncated)
}

func TestSnapshot_InvalidMagic(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	st := seedStore(t, 1)

	require.NoError(t, Write(ctx, bs, "snap", st))

	data, err := blobstore.ReadAll(ctx, bs, "snap")
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[0:], 0xDEADBEEF)
	require.NoError(t, bs.Put(ctx, "snap", data))

	_, err = Read(ctx, bs, "snap")
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestSnapshot_UnsupportedVersion(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	st := seedStore(t, 1)

	require.NoError(t, Write(ctx, bs, "snap", st))

	data, err := blobstore.ReadAll(ctx, bs, "snap")
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[4:], 0x00990000)
	require.NoError(t, bs.Put(ctx, "snap", data))

	_, err = Read(ctx, bs, "snap")
	require.ErrorIs(t, err, ErrInvalidVersion)
}

func TestSnapshot_WithController(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	st := seedStore(t, 5)

	rc := resource.NewController(resource.Config{MaxBackgroundJobs: 2})

	require.NoError(t, Write(ctx, bs, "snap", st, WithController(rc)))

	entries, err := Read(ctx, bs, "snap", WithController(rc), WithParallelism(2))
	require.NoError(t, err)
	require.Len(t, entries, 5)
}
