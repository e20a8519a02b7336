// Package graph builds the partial commit graph spanning a branch
// rebuild, from head back to one or more root commits, and produces a
// reverse topological ordering over it for the branch rebuilder to walk.
package graph

import (
	"bytes"
	"context"

	"github.com/wabain/git-entropy/internal/errs"
	"github.com/wabain/git-entropy/internal/oid"
)

// Walker is the subset of gitwire.Repo the graph needs to populate itself.
type Walker interface {
	RevListAncestryPath(ctx context.Context, head, root oid.OID) ([]byte, error)
	RevListNoWalkParents(ctx context.Context, revs []oid.OID) ([]byte, error)
}

// CommitGraph records each known commit's parents. It is partial by
// design: only commits reachable from a requested head, down to a
// requested set of roots, are present.
type CommitGraph struct {
	childToParents map[oid.OID][]oid.OID
}

// New returns an empty graph.
func New() *CommitGraph {
	return &CommitGraph{childToParents: map[oid.OID][]oid.OID{}}
}

// BuildPartial populates a graph spanning head down to each of roots. For
// each root not already discovered (e.g. as an ancestor of a previously
// processed root), it walks the ancestry path from head to that root; it
// is not possible to do this with one rev-list invocation per the
// underlying VCS's interface, so one call is issued per root.
func BuildPartial(ctx context.Context, w Walker, head oid.OID, roots []oid.OID) (*CommitGraph, error) {
	g := New()

	for _, root := range roots {
		if g.Contains(root) {
			continue
		}
		if err := g.AddPath(ctx, w, head, root); err != nil {
			return nil, err
		}
	}

	if err := g.AddCommits(ctx, w, roots); err != nil {
		return nil, err
	}

	return g, nil
}

// Contains reports whether commit is present in the graph.
func (g *CommitGraph) Contains(commit oid.OID) bool {
	_, ok := g.childToParents[commit]
	return ok
}

// Parents returns commit's recorded parents.
func (g *CommitGraph) Parents(commit oid.OID) ([]oid.OID, bool) {
	p, ok := g.childToParents[commit]
	return p, ok
}

// AddCommits records the given commits (without walking their ancestry).
func (g *CommitGraph) AddCommits(ctx context.Context, w Walker, commits []oid.OID) error {
	if len(commits) == 0 {
		return nil
	}
	out, err := w.RevListNoWalkParents(ctx, commits)
	if err != nil {
		return err
	}
	return g.addFromRevListParents(out)
}

// AddPath records every commit on the ancestry path from head to root,
// exclusive of root's own ancestors beyond that path.
func (g *CommitGraph) AddPath(ctx context.Context, w Walker, head, root oid.OID) error {
	out, err := w.RevListAncestryPath(ctx, head, root)
	if err != nil {
		return err
	}
	return g.addFromRevListParents(out)
}

func (g *CommitGraph) addFromRevListParents(output []byte) error {
	for _, entry := range bytes.Split(output, []byte("\n")) {
		if len(entry) == 0 {
			continue
		}

		fields := bytes.Fields(entry)
		child, err := oid.FromHex(string(fields[0]))
		if err != nil {
			return errs.Wrap(err, "rev-list: bad commit oid")
		}

		parents := make([]oid.OID, len(fields)-1)
		for i, f := range fields[1:] {
			p, err := oid.FromHex(string(f))
			if err != nil {
				return errs.Wrap(err, "rev-list: bad parent oid")
			}
			parents[i] = p
		}

		if prev, ok := g.childToParents[child]; ok {
			if !equalOIDs(prev, parents) {
				return errs.New("rev-list: inconsistent parents recorded for %s", child)
			}
			continue
		}
		g.childToParents[child] = parents
	}
	return nil
}

func equalOIDs(a, b []oid.OID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// workItem is one entry of the explicit DFS stack used by
// ReverseTopoOrder: a commit, its already-looked-up parents, and whether
// this is the item's second visit (post-recursion).
type workItem struct {
	commit      oid.OID
	parents     []oid.OID
	hasRecursed bool
}

// ReverseTopoOrder returns head's known ancestors (including head) such
// that every commit precedes all of its descendants. It uses an explicit
// two-visit-stack DFS rather than function recursion so that arbitrarily
// deep histories don't risk a stack overflow.
func (g *CommitGraph) ReverseTopoOrder(head oid.OID) []oid.OID {
	visited := map[oid.OID]struct{}{}
	var ordering []oid.OID

	stack := []workItem{{commit: head, parents: g.childToParents[head]}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// A commit reachable along two paths can be pushed twice before
		// either copy is finished; only the first copy is emitted.
		if _, seen := visited[item.commit]; seen {
			continue
		}

		if !item.hasRecursed {
			stack = append(stack, workItem{commit: item.commit, parents: item.parents, hasRecursed: true})

			for i := len(item.parents) - 1; i >= 0; i-- {
				parent := item.parents[i]
				if _, seen := visited[parent]; seen {
					continue
				}
				grandparents, ok := g.childToParents[parent]
				if !ok {
					continue
				}
				stack = append(stack, workItem{commit: parent, parents: grandparents})
			}
			continue
		}

		visited[item.commit] = struct{}{}
		ordering = append(ordering, item.commit)
	}

	return ordering
}
