package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]BlobStore {
	t.Helper()
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return map[string]BlobStore{
		"memory": NewMemoryStore(),
		"local":  local,
	}
}

func TestBlobStore_PutOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, bs := range stores(t) {
		t.Run(name, func(t *testing.T) {
			data := []byte("hello blob store")
			require.NoError(t, bs.Put(ctx, "snap-001", data))

			blob, err := bs.Open(ctx, "snap-001")
			require.NoError(t, err)
			defer blob.Close()

			require.Equal(t, int64(len(data)), blob.Size())

			got := make([]byte, len(data))
			n, err := blob.ReadAt(ctx, got, 0)
			require.NoError(t, err)
			require.Equal(t, len(data), n)
			require.Equal(t, data, got)
		})
	}
}

func TestBlobStore_OpenNotFound(t *testing.T) {
	ctx := context.Background()
	for name, bs := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := bs.Open(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBlobStore_CreateVisibleOnClose(t *testing.T) {
	ctx := context.Background()
	for name, bs := range stores(t) {
		t.Run(name, func(t *testing.T) {
			w, err := bs.Create(ctx, "staged")
			require.NoError(t, err)

			_, err = w.Write([]byte("part one "))
			require.NoError(t, err)
			_, err = w.Write([]byte("part two"))
			require.NoError(t, err)

			// Not visible until closed.
			_, err = bs.Open(ctx, "staged")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, w.Close())

			got, err := ReadAll(ctx, bs, "staged")
			require.NoError(t, err)
			require.Equal(t, []byte("part one part two"), got)
		})
	}
}

func TestBlobStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	for name, bs := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, bs.Put(ctx, "blob", []byte("old contents")))
			require.NoError(t, bs.Put(ctx, "blob", []byte("new")))

			got, err := ReadAll(ctx, bs, "blob")
			require.NoError(t, err)
			require.Equal(t, []byte("new"), got)
		})
	}
}

func TestBlobStore_Delete(t *testing.T) {
	ctx := context.Background()
	for name, bs := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, bs.Put(ctx, "blob", []byte("x")))
			require.NoError(t, bs.Delete(ctx, "blob"))

			_, err := bs.Open(ctx, "blob")
			require.ErrorIs(t, err, ErrNotFound)

			// Deleting an absent blob is not an error.
			require.NoError(t, bs.Delete(ctx, "blob"))
		})
	}
}

func TestBlobStore_List(t *testing.T) {
	ctx := context.Background()
	for name, bs := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, bs.Put(ctx, "snap-002", []byte("b")))
			require.NoError(t, bs.Put(ctx, "snap-001", []byte("a")))
			require.NoError(t, bs.Put(ctx, "other", []byte("c")))

			names, err := bs.List(ctx, "snap-")
			require.NoError(t, err)
			require.Equal(t, []string{"snap-001", "snap-002"}, names)

			all, err := bs.List(ctx, "")
			require.NoError(t, err)
			require.Equal(t, []string{"other", "snap-001", "snap-002"}, all)
		})
	}
}

func TestReadAll_Empty(t *testing.T) {
	ctx := context.Background()
	bs := NewMemoryStore()
	require.NoError(t, bs.Put(ctx, "empty", nil))

	got, err := ReadAll(ctx, bs, "empty")
	require.NoError(t, err)
	require.Empty(t, got)
}
