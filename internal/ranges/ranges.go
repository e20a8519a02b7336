// Package ranges defines IndexedRange, a span of lines in a file at a
// particular revision. It is the shared currency between diffparse, blame,
// and amend: a hunk edit names a range, blame resolves a range to the
// commit that introduced it, and an amendment plan rewrites it.
package ranges

import (
	"context"
	"fmt"

	"github.com/wabain/git-entropy/internal/oid"
)

// TreeLister is the subset of gitwire.Repo needed to resolve a range's blob
// OID. Kept narrow so ranges has no dependency on gitwire.
type TreeLister interface {
	BlobOIDAtPath(ctx context.Context, rev, path string) (oid.OID, error)
}

// IndexedRange names a span of lines in a file as it existed at rev. Start
// is 1-based; Extent is the number of lines in the span. A zero-extent
// range denotes an insertion point rather than a span of existing content.
type IndexedRange struct {
	Rev    string
	File   string
	Start  int
	Extent int
}

// FormattedRange renders the range the way `git blame`/diff hunks do:
// "<start>,+<extent>".
func (r IndexedRange) FormattedRange() string {
	return fmt.Sprintf("%d,+%d", r.Start, r.Extent)
}

func (r IndexedRange) String() string {
	return fmt.Sprintf("<IndexedRange %s %q %s>", r.Rev, r.File, r.FormattedRange())
}

// End returns the line number one past the end of the range.
func (r IndexedRange) End() int {
	return r.Start + r.Extent
}

// Empty reports whether the range spans no lines.
func (r IndexedRange) Empty() bool {
	return r.Extent == 0
}

// Overlaps reports whether r and other describe overlapping line spans in
// the same file. The caller is responsible for ensuring the revisions are
// comparable (e.g. both rebased onto the same rewrite lineage).
func (r IndexedRange) Overlaps(other IndexedRange) bool {
	if r.File != other.File {
		return false
	}
	return r.Start < other.End() && other.Start < r.End()
}

// OID resolves the range's file to the blob OID it names at Rev.
func (r IndexedRange) OID(ctx context.Context, lister TreeLister) (oid.OID, error) {
	return lister.BlobOIDAtPath(ctx, r.Rev, r.File)
}
