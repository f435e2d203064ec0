package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/envgo/digest"
	"github.com/hupe1980/envgo/envelope"
)

// Marshal encodes an envelope into its canonical byte form. It is total:
// every envelope produced by the builder encodes without error.
//
// Layout, in order:
//  1. type hash, 32 raw bytes
//  2. type name, length-prefixed UTF-8 (length 0 = absent)
//  3. relationship count, then per edge: length-prefixed type + 32-byte
//     target, sorted by (type, target bytes) ascending
//  4. index field count, then per field (sorted by key ascending):
//     length-prefixed key, one kind byte, kind-specific payload
//  5. previous: presence byte, then 32 raw bytes if present
//  6. created_at: presence byte, then 8 raw bytes if present
//  7. payload, length-prefixed raw bytes
func Marshal(env *envelope.Envelope) []byte {
	// Rough size guess to avoid most growth: fixed fields plus payload.
	buf := make([]byte, 0, 128+len(env.Payload))

	buf = append(buf, env.TypeHash.Bytes()...)
	buf = appendLenPrefixed(buf, []byte(env.TypeName))

	rels := env.CanonicalRelationships()
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rels)))
	for _, rel := range rels {
		buf = appendLenPrefixed(buf, []byte(rel.Type))
		buf = append(buf, rel.Target.Bytes()...)
	}

	keys := env.SortedIndexKeys()
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		buf = appendLenPrefixed(buf, []byte(k))
		buf = appendValue(buf, env.Index[k])
	}

	if env.Previous != nil {
		buf = append(buf, 1)
		buf = append(buf, env.Previous.Bytes()...)
	} else {
		buf = append(buf, 0)
	}

	if env.CreatedAt != nil {
		buf = append(buf, 1)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(*env.CreatedAt))
	} else {
		buf = append(buf, 0)
	}

	buf = appendLenPrefixed(buf, env.Payload)
	return buf
}

// Unmarshal decodes a canonical byte form back into an envelope. It fails
// with a DecodeError on any structural inconsistency: a length prefix past
// the end of the buffer, an unknown value tag, or trailing bytes. Non-UTF-8
// text is lossy-replaced with U+FFFD rather than rejected.
//
// Relationships come back in canonical (type, target) order, which may
// differ from the order the envelope was built with.
func Unmarshal(data []byte) (*envelope.Envelope, error) {
	r := reader{buf: data}

	var env envelope.Envelope

	typeHash, err := r.digest("type hash")
	if err != nil {
		return nil, err
	}
	env.TypeHash = typeHash

	env.TypeName, err = r.text("type name")
	if err != nil {
		return nil, err
	}

	relCount, err := r.uint32("relationship count")
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < relCount; i++ {
		relType, err := r.text("relationship type")
		if err != nil {
			return nil, err
		}
		target, err := r.digest("relationship target")
		if err != nil {
			return nil, err
		}
		env.Relationships = append(env.Relationships, envelope.Relationship{Type: relType, Target: target})
	}

	fieldCount, err := r.uint32("index field count")
	if err != nil {
		return nil, err
	}
	// Smallest possible field is a 4-byte key prefix, a kind byte and a
	// 1-byte bool payload. A count that cannot fit in the remaining bytes
	// is rejected before the map is sized from it.
	if uint64(fieldCount)*6 > uint64(len(r.buf)-r.pos) {
		return nil, decodeErr("index field count", fmt.Errorf("%w: %d fields cannot fit in %d remaining bytes", ErrShortBuffer, fieldCount, len(r.buf)-r.pos))
	}
	if fieldCount > 0 {
		env.Index = make(map[string]envelope.Value, fieldCount)
	}
	for i := uint32(0); i < fieldCount; i++ {
		key, err := r.text("index field key")
		if err != nil {
			return nil, err
		}
		value, err := r.value()
		if err != nil {
			return nil, err
		}
		env.Index[key] = value
	}

	hasPrevious, err := r.presence("previous")
	if err != nil {
		return nil, err
	}
	if hasPrevious {
		prev, err := r.digest("previous")
		if err != nil {
			return nil, err
		}
		env.Previous = &prev
	}

	hasCreatedAt, err := r.presence("created_at")
	if err != nil {
		return nil, err
	}
	if hasCreatedAt {
		ts, err := r.int64("created_at")
		if err != nil {
			return nil, err
		}
		env.CreatedAt = &ts
	}

	payload, err := r.lenPrefixed("payload")
	if err != nil {
		return nil, err
	}
	env.Payload = payload

	if r.pos != len(r.buf) {
		return nil, decodeErr("envelope", fmt.Errorf("%w: %d bytes remain", ErrTrailingBytes, len(r.buf)-r.pos))
	}
	return &env, nil
}

func appendLenPrefixed(buf, b []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func appendValue(buf []byte, v envelope.Value) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case envelope.KindString:
		buf = appendLenPrefixed(buf, []byte(v.Str))
	case envelope.KindInt64, envelope.KindTimestamp:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.I64))
	case envelope.KindFloat64:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.F64))
	case envelope.KindBool:
		if v.B {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case envelope.KindHash:
		buf = append(buf, v.H.Bytes()...)
	}
	return buf
}

// reader is a cursor over an immutable buffer. Every read method returns a
// DecodeError naming the field when the buffer runs out.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) take(n int, field string) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, decodeErr(field, fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrShortBuffer, n, r.pos, len(r.buf)))
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uint32(field string) (uint32, error) {
	b, err := r.take(4, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) int64(field string) (int64, error) {
	b, err := r.take(8, field)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (r *reader) digest(field string) (digest.Digest, error) {
	b, err := r.take(digest.Size, field)
	if err != nil {
		return digest.Digest{}, err
	}
	d, err := digest.FromBytes(b)
	if err != nil {
		return digest.Digest{}, decodeErr(field, err)
	}
	return d, nil
}

func (r *reader) lenPrefixed(field string) ([]byte, error) {
	n, err := r.uint32(field)
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n), field)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// text reads a length-prefixed string, lossy-replacing invalid UTF-8 with
// U+FFFD. Tolerant decode is deliberate: text fields are display-oriented
// and a corrupt label should not make the whole envelope unreadable.
func (r *reader) text(field string) (string, error) {
	b, err := r.lenPrefixed(field)
	if err != nil {
		return "", err
	}
	if utf8.Valid(b) {
		return string(b), nil
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}

func (r *reader) presence(field string) (bool, error) {
	b, err := r.take(1, field)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, decodeErr(field, fmt.Errorf("invalid presence byte 0x%02x", b[0]))
	}
}

func (r *reader) value() (envelope.Value, error) {
	tag, err := r.take(1, "index value tag")
	if err != nil {
		return envelope.Value{}, err
	}

	switch envelope.Kind(tag[0]) {
	case envelope.KindString:
		s, err := r.text("string index value")
		if err != nil {
			return envelope.Value{}, err
		}
		return envelope.String(s), nil
	case envelope.KindInt64:
		v, err := r.int64("int64 index value")
		if err != nil {
			return envelope.Value{}, err
		}
		return envelope.Int64(v), nil
	case envelope.KindTimestamp:
		v, err := r.int64("timestamp index value")
		if err != nil {
			return envelope.Value{}, err
		}
		return envelope.Timestamp(v), nil
	case envelope.KindFloat64:
		b, err := r.take(8, "float64 index value")
		if err != nil {
			return envelope.Value{}, err
		}
		return envelope.Float64(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case envelope.KindBool:
		b, err := r.take(1, "bool index value")
		if err != nil {
			return envelope.Value{}, err
		}
		return envelope.Bool(b[0] != 0), nil
	case envelope.KindHash:
		d, err := r.digest("hash index value")
		if err != nil {
			return envelope.Value{}, err
		}
		return envelope.Hash(d), nil
	default:
		return envelope.Value{}, decodeErr("index value tag", fmt.Errorf("%w: 0x%02x", ErrUnknownTag, tag[0]))
	}
}
