package apply

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wabain/git-entropy/internal/amend"
	"github.com/wabain/git-entropy/internal/gitwire"
	"github.com/wabain/git-entropy/internal/oid"
)

func hexOID(b byte) oid.OID {
	var o oid.OID
	for i := range o {
		o[i] = b
	}
	return o
}

// fakeRepo is an in-memory stand-in for gitwire.Repo: a flat commit ->
// tree listing, blob contents by OID, and counters for object writes.
type fakeRepo struct {
	mu sync.Mutex

	commits map[oid.OID]*gitwire.CommitMeta
	trees   map[oid.OID][]gitwire.TreeEntry // keyed by commit OID, root listing only
	blobs   map[oid.OID][]byte

	nextWrittenOID byte
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		commits:        map[oid.OID]*gitwire.CommitMeta{},
		trees:          map[oid.OID][]gitwire.TreeEntry{},
		blobs:          map[oid.OID][]byte{},
		nextWrittenOID: 0x10,
	}
}

func (f *fakeRepo) CatFileCommit(ctx context.Context, commit oid.OID) (*gitwire.CommitMeta, error) {
	return f.commits[commit], nil
}

func (f *fakeRepo) CatFileBlob(ctx context.Context, blob oid.OID) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.blobs[blob])), nil
}

func (f *fakeRepo) HashObjectBlob(ctx context.Context, content io.Reader) (oid.OID, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return oid.Zero, err
	}
	f.mu.Lock()
	o := hexOID(f.nextWrittenOID)
	f.nextWrittenOID++
	f.mu.Unlock()
	f.blobs[o] = data
	return o, nil
}

func (f *fakeRepo) LsTree(ctx context.Context, treeish string, recursive bool, path string) ([]gitwire.TreeEntry, error) {
	for commit, entries := range f.trees {
		if commit.String() == treeish {
			if path == "./" || path == "" {
				return entries, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeRepo) MkTree(ctx context.Context, entries []gitwire.TreeEntry) (oid.OID, error) {
	f.mu.Lock()
	o := hexOID(f.nextWrittenOID)
	f.nextWrittenOID++
	f.mu.Unlock()
	return o, nil
}

func (f *fakeRepo) CommitTree(ctx context.Context, tree oid.OID, parents []oid.OID, author, committer gitwire.Identity, message []byte) (oid.OID, error) {
	f.mu.Lock()
	o := hexOID(f.nextWrittenOID)
	f.nextWrittenOID++
	f.mu.Unlock()
	return o, nil
}

func TestBackendRewriteSingleCommitNoParents(t *testing.T) {
	repo := newFakeRepo()

	origCommit := hexOID(0x01)
	origBlob := hexOID(0x02)
	repo.commits[origCommit] = &gitwire.CommitMeta{
		OID:  origCommit,
		Tree: hexOID(0x03),
	}
	repo.trees[origCommit] = []gitwire.TreeEntry{
		{Mode: "100644", Kind: "blob", OID: origBlob, Path: "f.txt"},
	}
	repo.blobs[origBlob] = []byte("one\ntwo\nthree\n")

	backend := NewBackend(repo, 0)

	blobRecord := amend.New(origCommit, "f.txt", origBlob, amend.NoRewrite{})
	require.NoError(t, blobRecord.ReplaceLines(2, 1, []byte("REPLACED\n")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	commitHandle, blobsWithHandles, err := backend.RewriteCommit(
		ctx, origCommit, nil, []amend.Blob{amend.BlobFromNoRewrite(blobRecord)},
	)
	require.NoError(t, err)
	require.Len(t, blobsWithHandles, 1)

	newOID, err := backend.ResolveHandle(ctx, commitHandle)
	require.NoError(t, err)
	require.NotEqual(t, oid.Zero, newOID)

	require.NoError(t, backend.Join(ctx))
}

func TestBackendFastForwardReuseSharesOneBlobWrite(t *testing.T) {
	repo := newFakeRepo()

	parent := hexOID(0x01)
	child := hexOID(0x02)
	blobOID := hexOID(0x03)

	repo.commits[parent] = &gitwire.CommitMeta{OID: parent, Tree: hexOID(0x04)}
	repo.commits[child] = &gitwire.CommitMeta{OID: child, Tree: hexOID(0x05)}
	repo.trees[parent] = []gitwire.TreeEntry{{Mode: "100644", Kind: "blob", OID: blobOID, Path: "f.txt"}}
	repo.trees[child] = []gitwire.TreeEntry{{Mode: "100644", Kind: "blob", OID: blobOID, Path: "f.txt"}}
	repo.blobs[blobOID] = []byte("one\ntwo\n")

	backend := NewBackend(repo, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	parentBlob := amend.New(parent, "f.txt", blobOID, amend.NoRewrite{})
	require.NoError(t, parentBlob.ReplaceLines(1, 1, []byte("ONE\n")))

	parentHandle, parentBlobs, err := backend.RewriteCommit(
		ctx, parent, nil, []amend.Blob{amend.BlobFromNoRewrite(parentBlob)},
	)
	require.NoError(t, err)
	require.Len(t, parentBlobs, 1)

	// Reuse the parent's rewritten blob verbatim for the child, the way
	// fast-forward reuse carries a RewriteHandle forward unchanged.
	reused := amend.BlobFromRewriteHandle(parentBlobs[0].WithMeta(child, "f.txt"))

	childHandle, _, err := backend.RewriteCommit(
		ctx, child, []amend.ParentRef{amend.ParentHandle(parentHandle)}, []amend.Blob{reused},
	)
	require.NoError(t, err)

	childOID, err := backend.ResolveHandle(ctx, childHandle)
	require.NoError(t, err)
	require.NotEqual(t, oid.Zero, childOID)

	require.NoError(t, backend.Join(ctx))

	// The original blob plus exactly one rewritten blob.
	require.Len(t, repo.blobs, 2)
}

func TestBackendNoAmendedBlobsReusesOriginalTree(t *testing.T) {
	repo := newFakeRepo()
	commit := hexOID(0x01)
	originalTree := hexOID(0xAB)
	repo.commits[commit] = &gitwire.CommitMeta{OID: commit, Tree: originalTree}

	backend := NewBackend(repo, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handle, blobs, err := backend.RewriteCommit(ctx, commit, nil, nil)
	require.NoError(t, err)
	require.Empty(t, blobs)

	_, err = backend.ResolveHandle(ctx, handle)
	require.NoError(t, err)
	require.NoError(t, backend.Join(ctx))

	// Only the commit object was written; no tree was built.
	require.Equal(t, byte(0x11), repo.nextWrittenOID)
}

func TestDirNameAndBaseNameMatchPosixSemantics(t *testing.T) {
	require.Equal(t, "a/b", dirName("a/b/c.txt"))
	require.Equal(t, "a", dirName("a/b"))
	require.Equal(t, "", dirName("a"))

	require.Equal(t, "c.txt", baseName("a/b/c.txt"))
	require.Equal(t, "a", baseName("a"))
}
