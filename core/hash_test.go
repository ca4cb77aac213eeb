package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashBytesDeterministic(t *testing.T) {
	a := HashBytes([]byte("hello"))
	b := HashBytes([]byte("hello"))
	require.Equal(t, a, b)

	c := HashBytes([]byte("world"))
	require.NotEqual(t, a, c)
}

func TestHashStringRoundTrip(t *testing.T) {
	h := HashBytes([]byte("round trip"))
	parsed, err := HashFromHex(h.String())
	require.NoError(t, err)
	require.Equal(t, h, parsed)
}

func TestHashFromHexRejectsBadInput(t *testing.T) {
	_, err := HashFromHex("not-hex")
	require.ErrorIs(t, err, ErrInvalidHashLen)

	_, err = HashFromHex("abcd")
	require.ErrorIs(t, err, ErrInvalidHashLen)
}

func TestHashJSONMarshalRoundTrip(t *testing.T) {
	h := HashBytes([]byte("payload"))
	b, err := json.Marshal(h)
	require.NoError(t, err)

	var out Hash
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, h, out)
}

func TestHashJSONCanonicalization(t *testing.T) {
	type sample struct {
		A int
		B string
	}
	h1, err := HashJSON(sample{A: 1, B: "x"})
	require.NoError(t, err)
	h2, err := HashJSON(sample{A: 1, B: "x"})
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	h3, err := HashJSON(sample{A: 2, B: "x"})
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}

func TestZeroHashIsZero(t *testing.T) {
	require.True(t, ZeroHash.IsZero())
	require.False(t, HashBytes([]byte("x")).IsZero())
}
