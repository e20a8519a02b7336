package amend

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wabain/git-entropy/internal/blame"
	"github.com/wabain/git-entropy/internal/diffparse"
	"github.com/wabain/git-entropy/internal/oid"
	"github.com/wabain/git-entropy/internal/ranges"
)

func hexOID(b byte) oid.OID {
	var o oid.OID
	for i := range o {
		o[i] = b
	}
	return o
}

var commitA = hexOID(0xAA)
var commitB = hexOID(0xBB)

func TestReplaceLinesRejectsOverlap(t *testing.T) {
	b := New(commitA, "f.txt", hexOID(1), NoRewrite{})
	require.NoError(t, b.ReplaceLines(5, 2, []byte("x\n")))
	require.Error(t, b.ReplaceLines(6, 2, []byte("y\n")))
}

func TestReplaceLinesDedupesIdenticalRequest(t *testing.T) {
	b := New(commitA, "f.txt", hexOID(1), NoRewrite{})
	require.NoError(t, b.ReplaceLines(5, 2, []byte("x\n")))
	require.NoError(t, b.ReplaceLines(5, 2, []byte("x\n")))
	require.Len(t, b.Amendments, 1)
}

func TestReplaceLinesKeepsSortedOrder(t *testing.T) {
	b := New(commitA, "f.txt", hexOID(1), NoRewrite{})
	require.NoError(t, b.ReplaceLines(10, 1, []byte("c\n")))
	require.NoError(t, b.ReplaceLines(1, 1, []byte("a\n")))
	require.NoError(t, b.ReplaceLines(5, 1, []byte("b\n")))

	require.Equal(t, []int{1, 5, 10}, []int{
		b.Amendments[0].Start, b.Amendments[1].Start, b.Amendments[2].Start,
	})
}

type fakeBlobReader struct {
	content []byte
}

func (f *fakeBlobReader) CatFileBlob(ctx context.Context, blob oid.OID) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(f.content))), nil
}

func TestWriteSplicesAmendmentIntoContent(t *testing.T) {
	b := New(commitA, "f.txt", hexOID(1), NoRewrite{})
	require.NoError(t, b.ReplaceLines(2, 1, []byte("REPLACED\n")))

	reader := &fakeBlobReader{content: []byte("one\ntwo\nthree\n")}
	var out strings.Builder
	require.NoError(t, b.Write(context.Background(), reader, &out))

	require.Equal(t, "one\nREPLACED\nthree\n", out.String())
}

func TestWriteHandlesTrailingLineWithoutNewline(t *testing.T) {
	b := New(commitA, "f.txt", hexOID(1), NoRewrite{})

	reader := &fakeBlobReader{content: []byte("one\ntwo")}
	var out strings.Builder
	require.NoError(t, b.Write(context.Background(), reader, &out))

	require.Equal(t, "one\ntwo", out.String())
}

func TestWriteDeletesAmendedRange(t *testing.T) {
	b := New(commitA, "f.txt", hexOID(1), NoRewrite{})
	require.NoError(t, b.ReplaceLines(2, 1, nil))

	reader := &fakeBlobReader{content: []byte("one\ntwo\nthree\n")}
	var out strings.Builder
	require.NoError(t, b.Write(context.Background(), reader, &out))

	require.Equal(t, "one\nthree\n", out.String())
}

func TestAdjustedByDiffShiftsAmendmentsAfterInsertion(t *testing.T) {
	b := New(commitA, "f.txt", hexOID(1), NoRewrite{})
	require.NoError(t, b.ReplaceLines(10, 1, []byte("replaced\n")))

	// A hunk that inserts two lines before line 10's old position.
	hunk := &diffparse.Hunk{
		OldStart: 1,
		NewStart: 1,
		Ops: []diffparse.Op{
			{Type: diffparse.Context, Line: []byte("ctx\n")},
			{Type: diffparse.Add, Line: []byte("new1\n")},
			{Type: diffparse.Add, Line: []byte("new2\n")},
		},
	}

	out, err := b.AdjustedByDiff([]*diffparse.Hunk{hunk}, commitB, "f.txt", hexOID(2))
	require.NoError(t, err)
	require.Len(t, out.Amendments, 1)
	require.Equal(t, 12, out.Amendments[0].Start)
}

func TestAdjustedByDiffRejectsOverlapWithEdit(t *testing.T) {
	b := New(commitA, "f.txt", hexOID(1), NoRewrite{})
	require.NoError(t, b.ReplaceLines(2, 2, []byte("replaced\n")))

	hunk := &diffparse.Hunk{
		OldStart: 1,
		NewStart: 1,
		Ops: []diffparse.Op{
			{Type: diffparse.Context, Line: []byte("ctx\n")},
			{Type: diffparse.Remove, Line: []byte("old\n")},
			{Type: diffparse.Add, Line: []byte("new\n")},
		},
	}

	_, err := b.AdjustedByDiff([]*diffparse.Hunk{hunk}, commitB, "f.txt", hexOID(2))
	require.Error(t, err)
}

func TestWithMergedAmendmentsCombinesBoth(t *testing.T) {
	b := New(commitA, "f.txt", hexOID(1), NoRewrite{})
	require.NoError(t, b.ReplaceLines(1, 1, []byte("a\n")))

	merged, err := b.WithMergedAmendments([]AmendmentRecord{{Start: 5, Extent: 1, Replacement: []byte("b\n")}})
	require.NoError(t, err)
	require.Len(t, merged.Amendments, 2)
}

func TestWithRewriteDataChangesTypeParameter(t *testing.T) {
	b := New(commitA, "f.txt", hexOID(1), NoRewrite{})
	require.NoError(t, b.ReplaceLines(1, 1, []byte("a\n")))

	handle := RewriteHandle{ObjType: "blob", HandleID: 1}
	withHandle := WithRewriteData(b, handle)
	require.Equal(t, handle, withHandle.RewriteData)
	require.Len(t, withHandle.Amendments, 1)
}

// fakeRepo serves one fixed blame response and a fixed blob OID, enough
// to exercise Plan.AddHunk without a real repo.
type fakeRepo struct {
	blameOut []byte
	blobOID  oid.OID
}

func (f *fakeRepo) Blame(ctx context.Context, revOrRange string, start, extent int, file string) ([]byte, error) {
	return f.blameOut, nil
}

func (f *fakeRepo) BlobOIDAtPath(ctx context.Context, rev, path string) (oid.OID, error) {
	return f.blobOID, nil
}

func TestPlanAddHunkQueuesSingleAttributionEdit(t *testing.T) {
	porcelain := commitA.String() + " 5 2 1\n" +
		"filename f.txt\n" +
		"\tline two\n"

	repo := &fakeRepo{blameOut: []byte(porcelain), blobOID: hexOID(0x42)}
	plan := NewPlan(commitB, nil, repo)

	hunk := &diffparse.Hunk{
		OldFile:  strPtr("f.txt"),
		NewFile:  strPtr("f.txt"),
		OldStart: 2,
		NewStart: 2,
		Ops: []diffparse.Op{
			{Type: diffparse.Remove, Line: []byte("old\n")},
			{Type: diffparse.Add, Line: []byte("new\n")},
		},
	}

	require.NoError(t, plan.AddHunk(context.Background(), hunk))
	require.True(t, plan.HasAmendments())

	byFile := plan.Amendments()[commitA]
	require.NotNil(t, byFile)
	blob := byFile["f.txt"]
	require.NotNil(t, blob)
	require.Len(t, blob.Amendments, 1)
	require.Equal(t, 5, blob.Amendments[0].Start)
}

func TestPlanAddHunkSkipsPureInsertion(t *testing.T) {
	repo := &fakeRepo{}
	plan := NewPlan(commitB, nil, repo)

	hunk := &diffparse.Hunk{
		OldFile:  strPtr("f.txt"),
		NewFile:  strPtr("f.txt"),
		OldStart: 2,
		NewStart: 2,
		Ops: []diffparse.Op{
			{Type: diffparse.Add, Line: []byte("new\n")},
		},
	}

	require.NoError(t, plan.AddHunk(context.Background(), hunk))
	require.False(t, plan.HasAmendments())
}

func strPtr(s string) *string { return &s }

var _ blame.Blamer = (*fakeRepo)(nil)
var _ ranges.TreeLister = (*fakeRepo)(nil)
