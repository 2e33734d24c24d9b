package valuecodec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		v    any
		kind Kind
	}{
		{nil, KindAbsent},
		{map[string]any{}, KindObject},
		{[]any{}, KindArray},
		{"hi", KindString},
		{true, KindBoolean},
		{42, KindNumber},
		{3.14, KindNumber},
		{time.Now(), KindDateTime},
		{[]byte("x"), KindBinary},
		{PathReference("a/b"), KindReference},
	}
	for _, c := range cases {
		kind, err := Classify(c.v)
		require.NoError(t, err)
		require.Equal(t, c.kind, kind)
	}
}

func TestFitsInlineScalars(t *testing.T) {
	ok, err := FitsInline("short", MaxInlineValueSizeDefault)
	require.NoError(t, err)
	require.True(t, ok)

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	ok, err = FitsInline(string(long), MaxInlineValueSizeDefault)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFitsInlineComposite(t *testing.T) {
	ok, err := FitsInline(map[string]any{}, MaxInlineValueSizeDefault)
	require.NoError(t, err)
	require.True(t, ok, "empty composite is always inline")

	ok, err = FitsInline(map[string]any{"a": 1}, MaxInlineValueSizeDefault)
	require.NoError(t, err)
	require.False(t, ok, "non-empty composite is never inline")
}

func TestEncodeDecodeRoundTripScalars(t *testing.T) {
	now := time.Now().UTC().Round(time.Millisecond)
	bin := []byte{1, 2, 3, 4, 250}
	ref := PathReference("users/alice")

	for _, v := range []any{"hello", 42, true, now, bin, ref} {
		enc, err := EncodeInline(v)
		require.NoError(t, err)
		dec, err := DecodeInline(enc)
		require.NoError(t, err)
		require.Equal(t, v, dec)
	}
}

func TestEncodeInlineEmptyComposite(t *testing.T) {
	enc, err := EncodeInline(map[string]any{})
	require.NoError(t, err)
	dec, err := DecodeInline(enc)
	require.NoError(t, err)
	require.Equal(t, map[string]any{}, dec)
}

func TestDecodeRecursesNestedMaps(t *testing.T) {
	encBool, err := EncodeInline(true)
	require.NoError(t, err)
	m := map[string]any{
		"name":   "alice",
		"active": encBool,
	}
	decoded, err := Decode(m)
	require.NoError(t, err)
	require.Equal(t, "alice", decoded["name"])
	require.Equal(t, true, decoded["active"])
}

func TestIsEmptyComposite(t *testing.T) {
	require.True(t, IsEmptyComposite(map[string]any{}))
	require.True(t, IsEmptyComposite([]any{}))
	require.False(t, IsEmptyComposite(map[string]any{"a": 1}))
	require.False(t, IsEmptyComposite("x"))
}
