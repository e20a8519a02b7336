package blame

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wabain/git-entropy/internal/ranges"
)

func TestParsePorcelainCoalescesContiguousLines(t *testing.T) {
	porcelain := []byte(
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa 2 2 3\n" +
			"author Test\n" +
			"author-mail <test@example.com>\n" +
			"filename a.txt\n" +
			"\ttwo\n" +
			"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa 3 3\n" +
			"\tthree\n" +
			"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa 4 4\n" +
			"\tfour\n",
	)

	srcRange := ranges.IndexedRange{Rev: "HEAD", File: "a.txt", Start: 2, Extent: 3}
	mapping, err := ParsePorcelain(srcRange, porcelain, true)
	require.NoError(t, err)
	require.Len(t, mapping, 1)
	require.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", mapping[0].Old.Rev)
	require.Equal(t, "a.txt", mapping[0].Old.File)
	require.Equal(t, 2, mapping[0].Old.Start)
	require.Equal(t, 3, mapping[0].Old.Extent)
	require.Equal(t, "HEAD", mapping[0].New.Rev)
	require.Equal(t, 2, mapping[0].New.Start)
	require.Equal(t, 3, mapping[0].New.Extent)
}

func TestParsePorcelainSplitsOnDifferentSource(t *testing.T) {
	porcelain := []byte(
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa 1 1 1\n" +
			"author Test\n" +
			"filename a.txt\n" +
			"\tone\n" +
			"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb 9 2 1\n" +
			"author Other\n" +
			"filename a.txt\n" +
			"\ttwo\n",
	)

	srcRange := ranges.IndexedRange{Rev: "HEAD", File: "a.txt", Start: 1, Extent: 2}
	mapping, err := ParsePorcelain(srcRange, porcelain, true)
	require.NoError(t, err)
	require.Len(t, mapping, 2)
	require.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", mapping[0].Old.Rev)
	require.Equal(t, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", mapping[1].Old.Rev)
	require.Equal(t, 9, mapping[1].Old.Start)
}

func TestParsePorcelainDropsZeroRev(t *testing.T) {
	porcelain := []byte(
		"0000000000000000000000000000000000000000 1 1 1\n" +
			"author Not Committed Yet\n" +
			"filename a.txt\n" +
			"\tstaged\n",
	)
	srcRange := ranges.IndexedRange{Rev: "HEAD", File: "a.txt", Start: 1, Extent: 1}
	mapping, err := ParsePorcelain(srcRange, porcelain, true)
	require.NoError(t, err)
	require.Empty(t, mapping)
}

func TestParsePorcelainDropsBoundaryWhenExcluded(t *testing.T) {
	porcelain := []byte(
		"cccccccccccccccccccccccccccccccccccccccc 1 1 1\n" +
			"boundary\n" +
			"author Root\n" +
			"filename a.txt\n" +
			"\troot line\n",
	)
	srcRange := ranges.IndexedRange{Rev: "HEAD", File: "a.txt", Start: 1, Extent: 1}

	mapping, err := ParsePorcelain(srcRange, porcelain, false)
	require.NoError(t, err)
	require.Empty(t, mapping)

	mapping, err = ParsePorcelain(srcRange, porcelain, true)
	require.NoError(t, err)
	require.Len(t, mapping, 1)
}

func TestParsePorcelainMalformedHeaderIsError(t *testing.T) {
	_, err := ParsePorcelain(ranges.IndexedRange{}, []byte("not a header\n"), true)
	require.Error(t, err)
}
