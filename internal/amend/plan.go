package amend

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wabain/git-entropy/internal/blame"
	"github.com/wabain/git-entropy/internal/diffparse"
	"github.com/wabain/git-entropy/internal/oid"
	"github.com/wabain/git-entropy/internal/ranges"
)

// Repo is the subset of gitwire.Repo the amendment plan needs: blaming a
// range, and resolving a path to a blob OID at a revision.
type Repo interface {
	blame.Blamer
	ranges.TreeLister
}

// Plan accumulates the amendments discovered while walking a diff, keyed
// by the original commit and file each one traces back to via blame.
// Nothing is written until the branch rebuilder consumes it.
type Plan struct {
	Head oid.OID
	Root *oid.OID

	repo       Repo
	mu         sync.Mutex
	amendments map[oid.OID]map[string]*AmendedBlob[NoRewrite]
}

// NewPlan returns an empty plan rooted at head. A nil root blames across
// the whole reachable history; a non-nil root bounds the blame to
// root..head and drops attributions to commits outside that range.
func NewPlan(head oid.OID, root *oid.OID, repo Repo) *Plan {
	return &Plan{Head: head, Root: root, repo: repo, amendments: map[oid.OID]map[string]*AmendedBlob[NoRewrite]{}}
}

// HasAmendments reports whether any amendment has been queued.
func (p *Plan) HasAmendments() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.amendments) > 0
}

// Amendments returns the plan's current state, keyed by commit then file.
// The branch rebuilder reads this once AddHunk's fan-out has completed;
// Plan itself never mutates it except through AddAmendedRange/AddHunk.
func (p *Plan) Amendments() map[oid.OID]map[string]*AmendedBlob[NoRewrite] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.amendments
}

// BlameRange blames idxRange, bounded by the plan's root if one is set.
func (p *Plan) BlameRange(ctx context.Context, idxRange ranges.IndexedRange) ([]blame.Mapping, error) {
	rootRev := ""
	if p.Root != nil {
		rootRev = p.Root.String()
	}
	return blame.Run(ctx, p.repo, idxRange, rootRev)
}

// AddAmendedRange queues new_lines as the replacement for indexedRange,
// resolving (and caching) the underlying blob's OID on first use for its
// (commit, file).
func (p *Plan) AddAmendedRange(ctx context.Context, indexedRange ranges.IndexedRange, newLines []byte) error {
	commit, err := oid.FromHex(indexedRange.Rev)
	if err != nil {
		return err
	}

	// The blob OID lookup runs unlocked, off the shared map, so concurrent
	// AddAmendedRange calls from AddHunk's per-edit fan-out don't serialize
	// on ls-tree round-trips; only the map/slice mutation below is guarded.
	p.mu.Lock()
	forCommit, ok := p.amendments[commit]
	if !ok {
		forCommit = map[string]*AmendedBlob[NoRewrite]{}
		p.amendments[commit] = forCommit
	}
	forBlob, ok := forCommit[indexedRange.File]
	p.mu.Unlock()

	if !ok {
		blobOID, err := indexedRange.OID(ctx, p.repo)
		if err != nil {
			return err
		}

		p.mu.Lock()
		forBlob, ok = forCommit[indexedRange.File]
		if !ok {
			forBlob = New(commit, indexedRange.File, blobOID, NoRewrite{})
			forCommit[indexedRange.File] = forBlob
		}
		p.mu.Unlock()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return forBlob.ReplaceLines(indexedRange.Start, indexedRange.Extent, newLines)
}

// AddHunk walks one diff hunk's edits, blames each replaced old-side
// range, and queues the corresponding amendment against whichever commit
// blame attributes it to.
//
// A pure insertion (no old range) is skipped outright: even using a
// heuristic like the source of the surrounding context lines, there's no
// guarantee intervening lines weren't added and then deleted around this
// point, so there is nothing sound to attribute it to.
//
// When blame attributes an old range to more than one commit (the range
// spans a boundary blame couldn't resolve further), the edit can only be
// handled if it's a pure deletion; queue each attributed sub-range as
// deleted and move on. A multi-source edit that also adds new content is
// skipped entirely, since there's no way to know which of the source
// commits the new content belongs after.
func (p *Plan) AddHunk(ctx context.Context, hunk *diffparse.Hunk) error {
	edits := hunk.Edits(p.Head.String(), oid.Zero.String())

	g, ctx := errgroup.WithContext(ctx)
	for _, edit := range edits {
		edit := edit
		g.Go(func() error {
			return p.addEdit(ctx, hunk, edit)
		})
	}
	return g.Wait()
}

// addEdit blames one hunk edit's old range and queues the resulting
// amendment(s). Independent edits within a hunk touch disjoint line
// ranges, so AddHunk runs them concurrently; addEdit itself only talks to
// the repo and to AddAmendedRange, which is safe for concurrent callers.
func (p *Plan) addEdit(ctx context.Context, hunk *diffparse.Hunk, edit diffparse.Edit) error {
	if edit.OldRange == nil || edit.OldRange.Extent == 0 {
		return nil
	}

	blameOutputs, err := p.BlameRange(ctx, *edit.OldRange)
	if err != nil {
		return err
	}
	if len(blameOutputs) == 0 {
		return nil
	}

	if len(blameOutputs) > 1 {
		if edit.NewRange != nil && edit.NewRange.Extent > 0 {
			return nil
		}
		for _, m := range blameOutputs {
			if err := p.AddAmendedRange(ctx, m.Old, nil); err != nil {
				return err
			}
		}
		return nil
	}

	targetRange := blameOutputs[0].Old

	var newContent []byte
	if edit.NewRange != nil {
		newContent = hunk.NewRangeContent(edit.NewRange.Start, edit.NewRange.Extent)
	}

	return p.AddAmendedRange(ctx, targetRange, newContent)
}
