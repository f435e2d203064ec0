package envelope

import (
	"math"
	"strconv"

	"github.com/hupe1980/envgo/digest"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindString represents a string value.
	KindString
	// KindInt64 represents a signed 64-bit integer value.
	KindInt64
	// KindFloat64 represents an IEEE-754 64-bit float value.
	KindFloat64
	// KindBool represents a boolean value.
	KindBool
	// KindHash represents a digest value.
	KindHash
	// KindTimestamp represents a signed 64-bit epoch-seconds value.
	KindTimestamp
)

// Value is a small typed value used for envelope index fields.
//
// It is a closed tagged union: every kind participates identically in
// canonical encoding and hashing, and the Kind byte doubles as the wire tag.
//
// NOTE: This is also used for persistence; keep the kind numbering stable.
type Value struct {
	Kind Kind
	Str  string
	I64  int64
	F64  float64
	B    bool
	H    digest.Digest
}

// String returns a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Int64 returns a signed 64-bit integer Value.
func Int64(v int64) Value { return Value{Kind: KindInt64, I64: v} }

// Float64 returns a float64 Value.
func Float64(v float64) Value { return Value{Kind: KindFloat64, F64: v} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// Hash returns a digest Value.
func Hash(d digest.Digest) Value { return Value{Kind: KindHash, H: d} }

// Timestamp returns an epoch-seconds Value.
func Timestamp(epochSeconds int64) Value { return Value{Kind: KindTimestamp, I64: epochSeconds} }

// AsString returns the string value if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// AsInt64 returns the int64 value if Kind is KindInt64.
func (v Value) AsInt64() (int64, bool) {
	if v.Kind != KindInt64 {
		return 0, false
	}
	return v.I64, true
}

// AsFloat64 returns the float64 value if Kind is KindFloat64.
func (v Value) AsFloat64() (float64, bool) {
	if v.Kind != KindFloat64 {
		return 0, false
	}
	return v.F64, true
}

// AsBool returns the boolean value if Kind is KindBool.
func (v Value) AsBool() (bool, bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.B, true
}

// AsHash returns the digest value if Kind is KindHash.
func (v Value) AsHash() (digest.Digest, bool) {
	if v.Kind != KindHash {
		return digest.Digest{}, false
	}
	return v.H, true
}

// AsTimestamp returns the epoch-seconds value if Kind is KindTimestamp.
func (v Value) AsTimestamp() (int64, bool) {
	if v.Kind != KindTimestamp {
		return 0, false
	}
	return v.I64, true
}

// Key returns a stable string representation for use in index maps.
//
// It must remain stable across versions: the field index keys postings by it.
// Float64 uses the raw bit pattern so that distinct bit patterns (including
// negative zero and NaNs) key distinct postings.
func (v Value) Key() string {
	switch v.Kind {
	case KindString:
		return "s:" + v.Str
	case KindInt64:
		return "i:" + strconv.FormatInt(v.I64, 10)
	case KindFloat64:
		return "f:" + strconv.FormatUint(math.Float64bits(v.F64), 16)
	case KindBool:
		if v.B {
			return "b:1"
		}
		return "b:0"
	case KindHash:
		return "h:" + v.H.Hex()
	case KindTimestamp:
		return "t:" + strconv.FormatInt(v.I64, 10)
	default:
		return "invalid"
	}
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(other Value) bool {
	return v == other
}
