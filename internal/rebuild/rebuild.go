// Package rebuild walks a commit graph from the commits an amendment
// plan touched, forward to its head, submitting a commit-rewrite request
// to an apply backend at each step and threading rewritten parent
// handles and carried-over blob rewrites through the walk.
package rebuild

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wabain/git-entropy/internal/amend"
	"github.com/wabain/git-entropy/internal/apply"
	"github.com/wabain/git-entropy/internal/errs"
	"github.com/wabain/git-entropy/internal/gitwire"
	"github.com/wabain/git-entropy/internal/graph"
	"github.com/wabain/git-entropy/internal/oid"
)

// Repo is the subset of gitwire.Repo the rebuilder needs directly (graph
// traversal and diff-based reconciliation); blob/tree/commit writes are
// the apply backend's concern, not the rebuilder's.
type Repo interface {
	graph.Walker
	LsTree(ctx context.Context, treeish string, recursive bool, path string) ([]gitwire.TreeEntry, error)
	DiffTreeFindRenames(ctx context.Context, parent, commit oid.OID) ([]byte, error)
	DiffBlobsPatchWithRaw(ctx context.Context, oldBlob, newBlob oid.OID) ([]byte, error)
}

// rewrittenCommit is the per-commit bookkeeping the walk accumulates: the
// handle the apply backend assigned the rewritten commit, and the
// parallel list of rewritten blobs (each with its own handle) so
// descendant commits can look up what changed at this path.
type rewrittenCommit struct {
	commitHandle amend.RewriteHandle
	blobs        []*amend.AmendedBlob[amend.RewriteHandle]
}

// Builder drives the reverse-topological rewrite walk: each commit is
// rewritten only after its parents, so parent handles are always
// resolvable by the time a child needs them.
type Builder struct {
	head       oid.OID
	amendments map[oid.OID]map[string]*amend.AmendedBlob[amend.NoRewrite]
	graph      *graph.CommitGraph
	repo       Repo
	strategy   apply.Strategy

	amendedCommits map[oid.OID]*rewrittenCommit
}

// Write builds the partial commit graph spanning head back to every
// commit with recorded amendments, then drives the rewrite walk,
// returning the new head OID.
func Write(
	ctx context.Context,
	head oid.OID,
	amendments map[oid.OID]map[string]*amend.AmendedBlob[amend.NoRewrite],
	repo Repo,
	strategy apply.Strategy,
) (oid.OID, error) {
	roots := make([]oid.OID, 0, len(amendments))
	for root := range amendments {
		roots = append(roots, root)
	}

	g, err := graph.BuildPartial(ctx, repo, head, roots)
	if err != nil {
		return oid.Zero, err
	}

	b := &Builder{
		head:           head,
		amendments:     amendments,
		graph:          g,
		repo:           repo,
		strategy:       strategy,
		amendedCommits: map[oid.OID]*rewrittenCommit{},
	}
	return b.Apply(ctx)
}

// Apply runs the reverse-topological walk and resolves the rewritten
// head.
func (b *Builder) Apply(ctx context.Context) (oid.OID, error) {
	for _, commit := range b.graph.ReverseTopoOrder(b.head) {
		if err := b.startCommitRewrite(ctx, commit, b.amendments[commit]); err != nil {
			return oid.Zero, err
		}
	}

	headRewrite, ok := b.amendedCommits[b.head]
	if !ok {
		return oid.Zero, errs.New("rewrite: head %s was never rewritten", b.head)
	}

	newHead, err := b.strategy.ResolveHandle(ctx, headRewrite.commitHandle)
	if err != nil {
		return oid.Zero, err
	}

	if err := b.strategy.Join(ctx); err != nil {
		return oid.Zero, err
	}

	return newHead, nil
}

func (b *Builder) startCommitRewrite(
	ctx context.Context,
	commit oid.OID,
	amendments map[string]*amend.AmendedBlob[amend.NoRewrite],
) error {
	parents, ok := b.graph.Parents(commit)
	if !ok {
		return errs.New("rewrite: commit %s missing from partial graph", commit)
	}

	parentRefs, parentAmendments := b.getParentAmendments(parents)

	coalesced, err := b.coalesceAmendedBlobs(ctx, commit, amendments, parentAmendments)
	if err != nil {
		return err
	}

	commitHandle, blobsWithHandles, err := b.strategy.RewriteCommit(ctx, commit, parentRefs, coalesced)
	if err != nil {
		return err
	}

	logrus.Debugf("rewrite: commit %s -> handle %v (%d blob(s) coalesced)", commit, commitHandle, len(coalesced))

	b.amendedCommits[commit] = &rewrittenCommit{commitHandle: commitHandle, blobs: blobsWithHandles}
	return nil
}

// getParentAmendments maps each original parent to a ParentRef (a handle
// if that parent was itself rewritten, otherwise its OID unchanged) and
// collects every rewritten parent's blob rewrites into a
// path -> (parent OID -> rewritten blob) map for the coalescing step.
func (b *Builder) getParentAmendments(
	parents []oid.OID,
) ([]amend.ParentRef, map[string]map[oid.OID]*amend.AmendedBlob[amend.RewriteHandle]) {
	parentRefs := make([]amend.ParentRef, 0, len(parents))
	parentAmendments := map[string]map[oid.OID]*amend.AmendedBlob[amend.RewriteHandle]{}

	for _, parent := range parents {
		rewritten, ok := b.amendedCommits[parent]
		if !ok {
			parentRefs = append(parentRefs, amend.ParentOID(parent))
			continue
		}

		parentRefs = append(parentRefs, amend.ParentHandle(rewritten.commitHandle))

		for _, blob := range rewritten.blobs {
			byParent, ok := parentAmendments[blob.File]
			if !ok {
				byParent = map[oid.OID]*amend.AmendedBlob[amend.RewriteHandle]{}
				parentAmendments[blob.File] = byParent
			}
			byParent[parent] = blob
		}
	}

	return parentRefs, parentAmendments
}

// coalesceAmendedBlobs combines this commit's own new amendments with
// whatever rewrites its parents propagate, resolving paths touched by
// both via diff-based reconciliation and reusing parent blob rewrites
// verbatim wherever a fast-forward applies.
func (b *Builder) coalesceAmendedBlobs(
	ctx context.Context,
	commit oid.OID,
	newAmendments map[string]*amend.AmendedBlob[amend.NoRewrite],
	parentAmendments map[string]map[oid.OID]*amend.AmendedBlob[amend.RewriteHandle],
) ([]amend.Blob, error) {
	needFullReconcile := map[string]struct{}{}
	for path := range newAmendments {
		if _, ok := parentAmendments[path]; ok {
			needFullReconcile[path] = struct{}{}
		}
	}

	coalesced := map[string]amend.Blob{}
	for path, blob := range newAmendments {
		if _, need := needFullReconcile[path]; !need {
			coalesced[path] = amend.BlobFromNoRewrite(blob)
		}
	}

	var parentOnly []string
	for path := range parentAmendments {
		if _, need := needFullReconcile[path]; !need {
			parentOnly = append(parentOnly, path)
		}
	}

	if len(parentOnly) > 0 {
		if err := b.reuseParentBlobRewrites(ctx, commit, parentOnly, parentAmendments, coalesced, needFullReconcile); err != nil {
			return nil, err
		}
	}

	if len(needFullReconcile) > 0 {
		if err := b.handleParentChangesWithDiff(ctx, coalesced, commit, newAmendments, parentAmendments, needFullReconcile); err != nil {
			return nil, err
		}
	}

	out := make([]amend.Blob, 0, len(coalesced))
	for _, blob := range coalesced {
		out = append(out, blob)
	}
	return out, nil
}

// reuseParentBlobRewrites handles paths a parent rewrote but this commit
// left untouched: if the blob at that path in this commit still matches
// one of the parent's pre-rewrite OIDs, the parent's rewritten blob
// carries straight through (a fast-forward reuse needing no new apply
// backend write); otherwise the path falls back to full reconciliation.
// Each path's tree lookup is independent, so they run concurrently.
func (b *Builder) reuseParentBlobRewrites(
	ctx context.Context,
	commit oid.OID,
	paths []string,
	parentAmendments map[string]map[oid.OID]*amend.AmendedBlob[amend.RewriteHandle],
	coalesced map[string]amend.Blob,
	needFullReconcile map[string]struct{},
) error {
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			entries, err := b.repo.LsTree(gctx, commit.String(), false, path)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()

			if len(entries) == 0 {
				needFullReconcile[path] = struct{}{}
				return nil
			}

			childBlobOID := entries[0].OID
			if reusable := findReusableParent(childBlobOID, parentAmendments[path]); reusable != nil {
				logrus.Debugf("rewrite: fast-forward reuse of %q at commit %s", path, commit)
				coalesced[path] = amend.BlobFromRewriteHandle(reusable.WithMeta(commit, path))
			} else {
				logrus.Debugf("rewrite: %q at commit %s needs full diff reconciliation", path, commit)
				needFullReconcile[path] = struct{}{}
			}
			return nil
		})
	}
	return g.Wait()
}

func findReusableParent(
	childBlobOID oid.OID,
	parentBlobs map[oid.OID]*amend.AmendedBlob[amend.RewriteHandle],
) *amend.AmendedBlob[amend.RewriteHandle] {
	for _, blob := range parentBlobs {
		if blob.OID == childBlobOID {
			return blob
		}
	}
	return nil
}
