package diffparse

import (
	"bytes"

	"github.com/wabain/git-entropy/internal/ranges"
)

// LineType classifies one line of a hunk body.
type LineType byte

const (
	Context LineType = ' '
	Add     LineType = '+'
	Remove  LineType = '-'
)

func lineTypeFromByte(b byte) (LineType, bool) {
	switch LineType(b) {
	case Context, Add, Remove:
		return LineType(b), true
	default:
		return 0, false
	}
}

// Op is one line of hunk body content, tagged with whether it is present
// in the old file, the new file, or both. Line retains its trailing '\n'
// except for the final op of a file with no trailing newline.
type Op struct {
	Type LineType
	Line []byte
}

// Hunk is one `@@ -old_start,old_extent +new_start,new_extent @@` block of
// a unified diff, with OldFile/NewFile nil standing in for /dev/null (pure
// creation or deletion).
type Hunk struct {
	OldFile  *string
	NewFile  *string
	OldStart int
	NewStart int
	Ops      []Op
}

func (h *Hunk) oldFileName() string {
	if h.OldFile == nil {
		return ""
	}
	return *h.OldFile
}

func (h *Hunk) newFileName() string {
	if h.NewFile == nil {
		return ""
	}
	return *h.NewFile
}

// OldRange returns the span of old-file lines the hunk as a whole
// replaces, for rev.
func (h *Hunk) OldRange(rev string) ranges.IndexedRange {
	extent := 0
	for _, op := range h.Ops {
		if op.Type != Add {
			extent++
		}
	}
	return ranges.IndexedRange{Rev: rev, File: h.oldFileName(), Start: h.OldStart, Extent: extent}
}

// NewRangeContent reconstructs the new-file byte content spanning
// [start, start+extent) of new-file line numbers, as produced by this
// hunk. It returns the empty slice for a zero extent.
func (h *Hunk) NewRangeContent(start, extent int) []byte {
	if extent == 0 {
		return nil
	}

	var combined [][]byte
	lineno := h.NewStart
	for _, op := range h.Ops {
		if op.Type == Remove {
			continue
		}
		if lineno >= start && lineno < start+extent {
			combined = append(combined, op.Line)
		}
		lineno++
	}

	return bytes.Join(combined, nil)
}

// Edit pairs the old- and new-side ranges touched by one atomic edit
// within a hunk. OldRange is nil for a pure insertion (nothing to
// attribute on the old side); NewRange is nil for a pure deletion
// (nothing to replay as new content).
type Edit struct {
	OldRange *ranges.IndexedRange
	NewRange *ranges.IndexedRange
}

// LineMapping is one atomic edit within a hunk: a span of old-file lines
// replaced by a span of new-file lines. Either extent may be zero (a pure
// insertion has OldExtent 0; a pure deletion has NewExtent 0), but the
// starts are always meaningful: they locate the edit's position even
// when one side is empty, which amend.AdjustedByDiff needs to re-base
// amendment offsets across a rename/content change.
type LineMapping struct {
	OldStart, OldExtent int
	NewStart, NewExtent int
}

// LineMappings decomposes the hunk into its atomic edits by grouping
// consecutive non-context ops between context-line boundaries. Each group
// becomes one LineMapping: its old-side extent counts the group's Remove
// ops, its new-side extent counts the group's Add ops.
func (h *Hunk) LineMappings() []LineMapping {
	var mappings []LineMapping

	oldLine, newLine := h.OldStart, h.NewStart
	inGroup := false
	var groupOldStart, groupNewStart, removeCount, addCount int

	flush := func() {
		if !inGroup {
			return
		}
		mappings = append(mappings, LineMapping{
			OldStart: groupOldStart, OldExtent: removeCount,
			NewStart: groupNewStart, NewExtent: addCount,
		})
		inGroup = false
		removeCount, addCount = 0, 0
	}

	for _, op := range h.Ops {
		switch op.Type {
		case Context:
			flush()
			oldLine++
			newLine++
		case Remove:
			if !inGroup {
				inGroup = true
				groupOldStart, groupNewStart = oldLine, newLine
			}
			removeCount++
			oldLine++
		case Add:
			if !inGroup {
				inGroup = true
				groupOldStart, groupNewStart = oldLine, newLine
			}
			addCount++
			newLine++
		}
	}
	flush()

	return mappings
}

// Edits is LineMappings expressed as old/new IndexedRanges against
// oldRev/newRev, with a nil range standing in for a zero extent. Callers
// skip pure insertions and replay pure deletions as empty content.
func (h *Hunk) Edits(oldRev, newRev string) []Edit {
	mappings := h.LineMappings()
	edits := make([]Edit, len(mappings))

	for i, m := range mappings {
		var oldR, newR *ranges.IndexedRange
		if m.OldExtent > 0 {
			r := ranges.IndexedRange{Rev: oldRev, File: h.oldFileName(), Start: m.OldStart, Extent: m.OldExtent}
			oldR = &r
		}
		if m.NewExtent > 0 {
			r := ranges.IndexedRange{Rev: newRev, File: h.newFileName(), Start: m.NewStart, Extent: m.NewExtent}
			newR = &r
		}
		edits[i] = Edit{OldRange: oldR, NewRange: newR}
	}

	return edits
}
