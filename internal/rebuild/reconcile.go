package rebuild

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wabain/git-entropy/internal/amend"
	"github.com/wabain/git-entropy/internal/diffparse"
	"github.com/wabain/git-entropy/internal/errs"
	"github.com/wabain/git-entropy/internal/oid"
)

// ErrUnexpectedAdd reports a diff entry whose old path was a path this
// rewrite needed to reconcile, but whose new path is absent: the path
// was deleted between the parent and the commit being rewritten, leaving
// nowhere to re-project the parent's pending amendments. This is treated
// as fatal rather than silently dropping the amendment: on a merge
// commit it may be legitimate for one parent's diff to show a deletion
// that another parent's side still accounts for, but this distinction
// isn't made, so a real conflict and a benign merge-side deletion look
// the same and both fail closed.
func ErrUnexpectedAdd(commit, parent oid.OID, path string) *errs.Fatal {
	return errs.New(
		"unexpected diff entry during rewrite at %s, looking at %s, diffing %s",
		commit, parent, path,
	)
}

// handleParentChangesWithDiff runs the diff-based reconciliation pass for
// every path in neededPaths: for each original parent, diff that parent
// against commit (with rename detection), and for every diff entry whose
// old path needs reconciling, re-project that parent's amendments across
// the file-level diff and accumulate the result keyed by the entry's new
// path (so renames land correctly). Every parent's diff is independent of
// every other's, so they run concurrently; partiallyCoalesced and handled
// are shared across that fan-out behind mu.
func (b *Builder) handleParentChangesWithDiff(
	ctx context.Context,
	coalesced map[string]amend.Blob,
	commit oid.OID,
	newAmendments map[string]*amend.AmendedBlob[amend.NoRewrite],
	parentAmendments map[string]map[oid.OID]*amend.AmendedBlob[amend.RewriteHandle],
	neededPaths map[string]struct{},
) error {
	partiallyCoalesced := map[string]*amend.AmendedBlob[amend.NoRewrite]{}
	for path := range neededPaths {
		if blob, ok := newAmendments[path]; ok {
			partiallyCoalesced[path] = blob
		}
	}

	var mu sync.Mutex
	handled := map[string]struct{}{}

	parents, _ := b.graph.Parents(commit)

	g, gctx := errgroup.WithContext(ctx)
	for _, parent := range parents {
		parent := parent
		g.Go(func() error {
			return b.accountForDiffAgainstParent(
				gctx, &mu, partiallyCoalesced, handled, parent, commit, parentAmendments, neededPaths,
			)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for path := range neededPaths {
		if _, ok := handled[path]; !ok {
			return errs.New(
				"rewrite at %s: path %q needed full reconciliation but no parent diff accounted for it",
				commit, path,
			)
		}
	}
	for path := range partiallyCoalesced {
		if _, ok := coalesced[path]; ok {
			return errs.New("rewrite at %s: path %q was coalesced twice", commit, path)
		}
	}

	for path, blob := range partiallyCoalesced {
		coalesced[path] = amend.BlobFromNoRewrite(blob)
	}
	return nil
}

// accountForDiffAgainstParent diffs oldParent against commit, re-projects
// every needed path's parent amendments through the per-file diff, and
// records which needed paths it accounted for.
func (b *Builder) accountForDiffAgainstParent(
	ctx context.Context,
	mu *sync.Mutex,
	partiallyCoalesced map[string]*amend.AmendedBlob[amend.NoRewrite],
	handled map[string]struct{},
	oldParent, commit oid.OID,
	parentAmendments map[string]map[oid.OID]*amend.AmendedBlob[amend.RewriteHandle],
	neededPaths map[string]struct{},
) error {
	raw, err := b.repo.DiffTreeFindRenames(ctx, oldParent, commit)
	if err != nil {
		return err
	}
	summaries, err := diffparse.ParseTreeSummary(raw)
	if err != nil {
		return err
	}

	// A path can appear more than once in a tree-diff summary (rare, but
	// the format doesn't forbid it); the last entry for a given old path
	// wins, matching the dict comprehension this is grounded on.
	byOldPath := map[string]diffparse.FileDiffSummary{}
	for _, e := range summaries {
		if e.OldPath == "" {
			continue
		}
		if _, needed := neededPaths[e.OldPath]; !needed {
			continue
		}
		byOldPath[e.OldPath] = e
	}

	oldPaths := make([]string, 0, len(byOldPath))
	for p := range byOldPath {
		oldPaths = append(oldPaths, p)
	}
	sort.Strings(oldPaths)

	for _, oldPath := range oldPaths {
		entry := byOldPath[oldPath]

		if entry.NewPath == "" {
			return ErrUnexpectedAdd(commit, oldParent, entry.OldPath)
		}

		diffRaw, err := b.repo.DiffBlobsPatchWithRaw(ctx, entry.OldOID, entry.NewOID)
		if err != nil {
			return err
		}
		hunks, err := diffparse.ParseHunks(diffRaw)
		if err != nil {
			return err
		}

		mu.Lock()
		parentBlob, ok := parentAmendments[entry.OldPath][oldParent]
		mu.Unlock()
		if !ok {
			return errs.New(
				"rewrite at %s: no amendment recorded for %q at parent %s", commit, entry.OldPath, oldParent,
			)
		}

		adjusted, err := parentBlob.AdjustedByDiff(hunks, commit, entry.NewPath, entry.NewOID)
		if err != nil {
			return err
		}

		mu.Lock()
		handled[oldPath] = struct{}{}
		if prior, ok := partiallyCoalesced[entry.NewPath]; ok {
			merged, mergeErr := prior.WithMergedAmendments(adjusted.Amendments)
			if mergeErr != nil {
				mu.Unlock()
				return mergeErr
			}
			partiallyCoalesced[entry.NewPath] = merged
		} else {
			partiallyCoalesced[entry.NewPath] = adjusted
		}
		mu.Unlock()
	}

	return nil
}
