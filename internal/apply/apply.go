// Package apply is the strategy that materializes a branch rewrite by
// calling out to the VCS: it owns every object write (blobs, trees,
// commits) and the ordering relationships between a rewritten commit and
// its rewritten parents.
package apply

import (
	"context"
	"io"
	"sync"

	"github.com/wabain/git-entropy/internal/amend"
	"github.com/wabain/git-entropy/internal/gitwire"
	"github.com/wabain/git-entropy/internal/oid"
)

// Repo is the subset of gitwire.Repo the apply backend needs.
type Repo interface {
	CatFileCommit(ctx context.Context, commit oid.OID) (*gitwire.CommitMeta, error)
	CatFileBlob(ctx context.Context, blob oid.OID) (io.ReadCloser, error)
	HashObjectBlob(ctx context.Context, content io.Reader) (oid.OID, error)
	LsTree(ctx context.Context, treeish string, recursive bool, path string) ([]gitwire.TreeEntry, error)
	MkTree(ctx context.Context, entries []gitwire.TreeEntry) (oid.OID, error)
	CommitTree(ctx context.Context, tree oid.OID, parents []oid.OID, author, committer gitwire.Identity, message []byte) (oid.OID, error)
}

// Strategy is the interface the branch rebuilder drives; Backend is its
// only production implementation, grounded on GitSubprocessApplyStrategy.
type Strategy interface {
	RewriteCommit(ctx context.Context, commit oid.OID, parents []amend.ParentRef, blobs []amend.Blob) (amend.RewriteHandle, []*amend.AmendedBlob[amend.RewriteHandle], error)
	ResolveHandle(ctx context.Context, handle amend.RewriteHandle) (oid.OID, error)
	Join(ctx context.Context) error
	Cancel()
}

// Backend issues handles immediately and defers the actual subprocess
// work to a single worker goroutine reading off a bounded queue.
type Backend struct {
	mu         sync.Mutex
	nextHandle int

	worker *worker
}

// NewBackend starts the worker goroutine and returns a ready Backend. A
// queueCapacity of 0 uses DefaultQueueCapacity.
func NewBackend(repo Repo, queueCapacity int) *Backend {
	b := &Backend{worker: newWorker(repo, queueCapacity)}
	b.worker.launch()
	return b
}

func (b *Backend) bumpHandle() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextHandle++
	return b.nextHandle
}

// RewriteCommit assigns a commit handle and, for each blob lacking one
// already, a blob handle, then enqueues the request for the worker.
func (b *Backend) RewriteCommit(
	ctx context.Context,
	commit oid.OID,
	parents []amend.ParentRef,
	blobs []amend.Blob,
) (amend.RewriteHandle, []*amend.AmendedBlob[amend.RewriteHandle], error) {
	commitHandle := amend.RewriteHandle{ObjType: "commit", HandleID: b.bumpHandle()}

	blobsWithHandles := make([]*amend.AmendedBlob[amend.RewriteHandle], len(blobs))
	for i, blob := range blobs {
		handle := amend.RewriteHandle{ObjType: "blob", HandleID: b.bumpHandle()}
		if blob.Handle != nil {
			handle = *blob.Handle
		}
		ab := amend.New(blob.Commit, blob.File, blob.OID, handle)
		ab.Amendments = append(ab.Amendments, blob.Amendments...)
		blobsWithHandles[i] = ab
	}

	if err := b.worker.scheduleCommitRewrite(ctx, commitHandle, commit, parents, blobsWithHandles); err != nil {
		return commitHandle, nil, err
	}

	return commitHandle, blobsWithHandles, nil
}

// ResolveHandle awaits materialization of the commit named by handle.
func (b *Backend) ResolveHandle(ctx context.Context, handle amend.RewriteHandle) (oid.OID, error) {
	return b.worker.resolveCommitHandle(ctx, handle)
}

// Join waits for all queued work to finish, then shuts the backend down.
func (b *Backend) Join(ctx context.Context) error {
	err := b.worker.join(ctx)
	b.Cancel()
	return err
}

// Cancel stops the worker and cancels every in-flight task.
func (b *Backend) Cancel() {
	b.worker.cancel()
}

var _ Strategy = (*Backend)(nil)
