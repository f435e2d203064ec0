// Package snapshot serializes the full envelope set to a blob and restores
// it, with optional body compression, a CRC32C trailer against accidental
// corruption, and parallel digest verification on the way back in.
//
// Layout (little-endian):
//
//	magic   uint32
//	version uint32
//	codec   uint8, 3 reserved bytes
//	count   uint64
//	body    one compressed block of entries: digest(32) len(u32) bytes
//	crc32c  uint32 over everything above
//
// Envelopes travel as their canonical encodings, so a snapshot round-trip
// preserves every digest exactly.
package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/envgo/blobstore"
	"github.com/hupe1980/envgo/codec"
	"github.com/hupe1980/envgo/digest"
	"github.com/hupe1980/envgo/envelope"
	ihash "github.com/hupe1980/envgo/internal/hash"
	"github.com/hupe1980/envgo/resource"
	"github.com/hupe1980/envgo/store"
)

// Entry is one envelope recovered from a snapshot, already decoded and
// digest-verified. Data aliases the snapshot body buffer, which Read hands
// over to its entries; callers that mutate it must copy first.
type Entry struct {
	Digest   digest.Digest
	Data     []byte
	Envelope *envelope.Envelope
}

type options struct {
	compression Compression
	controller  *resource.Controller
	parallelism int
}

// Option configures snapshot writes and reads.
type Option func(*options)

// WithCompression selects the body compression codec. Default: none.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithController applies a resource controller to the snapshot job: one
// background slot for the duration, IO rate limiting on the blob writes.
func WithController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithParallelism bounds the number of goroutines verifying entries during
// Read. Default: GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		compression: CompressionNone,
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.parallelism <= 0 {
		o.parallelism = 1
	}
	return o
}

// Write serializes every envelope in st to the named blob. Entries are
// ordered by digest, so equal stores produce byte-identical snapshots.
func Write(ctx context.Context, bs blobstore.BlobStore, name string, st *store.Store, optFns ...Option) error {
	o := applyOptions(optFns)
	if !o.compression.valid() {
		return ErrInvalidCompression
	}

	if err := o.controller.AcquireBackground(ctx); err != nil {
		return err
	}
	defer o.controller.ReleaseBackground()

	digests := make([]digest.Digest, 0, st.Len())
	for d := range st.Digests() {
		digests = append(digests, d)
	}
	slices.SortFunc(digests, digest.Digest.Compare)

	var body bytes.Buffer
	for _, d := range digests {
		raw, err := st.GetRaw(d)
		if err != nil {
			return err
		}
		body.Write(d.Bytes())
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(raw)))
		body.Write(lenBuf[:])
		body.Write(raw)
	}

	block, err := compressBlock(body.Bytes(), o.compression)
	if err != nil {
		return err
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:], MagicNumber)
	binary.LittleEndian.PutUint32(header[4:], Version)
	header[8] = byte(o.compression)
	binary.LittleEndian.PutUint64(header[12:], uint64(len(digests)))

	w, err := bs.Create(ctx, name)
	if err != nil {
		return err
	}

	var out io.Writer = w
	if o.controller != nil {
		out = resource.NewRateLimitedWriter(ctx, w, o.controller)
	}
	cw := newChecksumWriter(out)

	if _, err := cw.Write(header); err != nil {
		w.Close()
		return err
	}
	if _, err := cw.Write(block); err != nil {
		w.Close()
		return err
	}

	var trailer [trailerSize]byte
	binary.LittleEndian.PutUint32(trailer[:], cw.Sum())
	if _, err := out.Write(trailer[:]); err != nil {
		w.Close()
		return err
	}

	return w.Close()
}

// Read loads the named snapshot, verifies the trailer checksum, and
// decodes every entry. Entry digests are recomputed from the stored bytes
// in parallel; a mismatch fails the whole read.
func Read(ctx context.Context, bs blobstore.BlobStore, name string, optFns ...Option) ([]Entry, error) {
	o := applyOptions(optFns)

	if err := o.controller.AcquireBackground(ctx); err != nil {
		return nil, err
	}
	defer o.controller.ReleaseBackground()

	data, err := blobstore.ReadAll(ctx, bs, name)
	if err != nil {
		return nil, err
	}
	if err := o.controller.AcquireIO(ctx, len(data)); err != nil {
		return nil, err
	}

	if len(data) < headerSize+trailerSize {
		return nil, ErrTruncated
	}

	if magic := binary.LittleEndian.Uint32(data[0:]); magic != MagicNumber {
		return nil, fmt.Errorf("%w: 0x%08x", ErrInvalidMagic, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:]); version != Version {
		return nil, fmt.Errorf("%w: 0x%08x", ErrInvalidVersion, version)
	}
	compression := Compression(data[8])
	if !compression.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCompression, compression)
	}
	count := binary.LittleEndian.Uint64(data[12:])

	payload := data[:len(data)-trailerSize]
	expected := binary.LittleEndian.Uint32(data[len(data)-trailerSize:])
	if actual := ihash.CRC32C(payload); actual != expected {
		return nil, &ChecksumMismatchError{Expected: expected, Actual: actual}
	}

	body, err := decompressBlock(payload[headerSize:], compression)
	if err != nil {
		return nil, err
	}

	// Each entry occupies at least a digest and a length prefix, so a count
	// the body cannot hold is corrupt. Checked before sizing the slice
	// from it.
	if count > uint64(len(body))/(digest.Size+4) {
		return nil, ErrTruncated
	}

	entries := make([]Entry, 0, count)
	off := 0
	for i := uint64(0); i < count; i++ {
		if off+digest.Size+4 > len(body) {
			return nil, ErrTruncated
		}
		d, err := digest.FromBytes(body[off : off+digest.Size])
		if err != nil {
			return nil, err
		}
		off += digest.Size
		n := int(binary.LittleEndian.Uint32(body[off:]))
		off += 4
		if off+n > len(body) {
			return nil, ErrTruncated
		}
		entries = append(entries, Entry{Digest: d, Data: body[off : off+n]})
		off += n
	}
	if off != len(body) {
		return nil, fmt.Errorf("snapshot body has %d trailing bytes", len(body)-off)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i := range entries {
		g.Go(func() error {
			e := &entries[i]
			if actual := digest.Sum(e.Data); actual != e.Digest {
				return &store.HashMismatchError{Expected: e.Digest, Actual: actual}
			}
			env, err := codec.Unmarshal(e.Data)
			if err != nil {
				return fmt.Errorf("entry %s: %w", e.Digest.Short(), err)
			}
			e.Envelope = env
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return entries, nil
}
