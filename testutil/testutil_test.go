package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/envgo/codec"
)

func TestRNG_Deterministic(t *testing.T) {
	a := NewRNG(42)
	b := NewRNG(42)

	ea := a.RandomEnvelopes(25)
	eb := b.RandomEnvelopes(25)

	require.Len(t, eb, len(ea))
	for i := range ea {
		require.Equal(t, codec.Marshal(ea[i]), codec.Marshal(eb[i]))
	}
}

func TestRNG_Reset(t *testing.T) {
	r := NewRNG(7)
	first := r.Digest()
	r.Reset()
	require.Equal(t, first, r.Digest())
	require.EqualValues(t, 7, r.Seed())
}

func TestRandomEnvelope_Valid(t *testing.T) {
	r := NewRNG(1)
	for i := 0; i < 100; i++ {
		env := r.RandomEnvelope(nil)
		require.False(t, env.TypeHash.IsZero())
		require.NotEmpty(t, env.Payload)
	}
}
