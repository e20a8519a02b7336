package oid

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromHexRoundTrip(t *testing.T) {
	const hex40 = "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	o, err := FromHex(hex40)
	require.NoError(t, err)
	require.Equal(t, hex40, o.String())
	require.Equal(t, hex40[:ShortHexSize], o.Short())
}

func TestFromHexRejectsBadLength(t *testing.T) {
	_, err := FromHex("abcd")
	require.Error(t, err)
}

func TestZeroSentinel(t *testing.T) {
	require.True(t, Zero.IsZero())
	o := MustFromHex("da39a3ee5e6b4b0d3255bfef95601890afd80709")
	require.False(t, o.IsZero())
}

func TestSliceSort(t *testing.T) {
	a := MustFromHex("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := MustFromHex("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	s := Slice{b, a}
	sort.Sort(s)
	require.Equal(t, Slice{a, b}, s)
}
