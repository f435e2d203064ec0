// Package blobstore abstracts the byte-oriented persistence backend that
// snapshots are written to: an opaque named-blob store with atomic put,
// random-access read, delete and prefix listing.
//
// The core envelope store is purely in-memory; a BlobStore is only involved
// when durability beyond process memory is required. Implementations exist
// for memory (tests), the local filesystem, MinIO and S3.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for storing and retrieving immutable data
// blobs (snapshots).
type BlobStore interface {
	// Put writes a blob atomically, replacing any existing blob of the
	// same name.
	Put(ctx context.Context, name string, data []byte) error

	// Open opens an existing blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create creates a new writable blob. The blob becomes visible when
	// the returned writer is closed.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Delete removes a blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at offset off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// Size returns the size of the blob in bytes.
	Size() int64

	io.Closer
}

// WritableBlob is a streaming write handle to a new blob.
type WritableBlob interface {
	io.Writer

	// Sync flushes buffered data to stable storage where supported.
	Sync() error

	io.Closer
}

// ReadAll reads an entire blob into a freshly allocated buffer owned by the
// caller; it never aliases a backend's internal storage.
func ReadAll(ctx context.Context, bs BlobStore, name string) ([]byte, error) {
	blob, err := bs.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	data := make([]byte, blob.Size())
	if len(data) == 0 {
		return data, nil
	}
	n, err := blob.ReadAt(ctx, data, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return data[:n], nil
}
