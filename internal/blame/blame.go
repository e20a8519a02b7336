// Package blame interprets `git blame --porcelain` output, mapping ranges
// of lines at one revision back to the commits and line ranges that
// introduced them.
package blame

import (
	"bytes"
	"context"
	"strconv"

	"github.com/wabain/git-entropy/internal/errs"
	"github.com/wabain/git-entropy/internal/ranges"
)

// Blamer is the subset of gitwire.Repo needed to run a blame.
type Blamer interface {
	Blame(ctx context.Context, revOrRange string, start, extent int, file string) ([]byte, error)
}

// Mapping pairs the range at the commit that introduced a span of lines
// (Old) with the corresponding span in the range that was blamed (New).
type Mapping struct {
	Old ranges.IndexedRange
	New ranges.IndexedRange
}

// Run blames indexedRange and coalesces the result into Mappings. If
// rootRev is empty the blame walks the whole history and boundary commits
// (graph roots) are kept; otherwise the blame is bounded to rootRev..rev
// and boundary attributions (lines older than the bound) are dropped.
func Run(ctx context.Context, repo Blamer, indexedRange ranges.IndexedRange, rootRev string) ([]Mapping, error) {
	if indexedRange.Extent == 0 {
		return nil, nil
	}

	revRange := indexedRange.Rev
	includeBoundary := rootRev == ""
	if rootRev != "" {
		revRange = rootRev + ".." + indexedRange.Rev
	}

	out, err := repo.Blame(ctx, revRange, indexedRange.Start, indexedRange.Extent, indexedRange.File)
	if err != nil {
		return nil, err
	}

	return ParsePorcelain(indexedRange, out, includeBoundary)
}

// ParsePorcelain interprets `git blame --porcelain` output for srcRange,
// greedily coalescing consecutive same-source lines into contiguous
// Mappings the way the upstream blame format's repeated per-line headers
// otherwise obscure.
func ParsePorcelain(srcRange ranges.IndexedRange, out []byte, includeBoundary bool) ([]Mapping, error) {
	lines := bytes.Split(out, []byte("\n"))

	transforms, err := blameTransforms(lines)
	if err != nil {
		return nil, err
	}

	var mapping []Mapping
	for _, t := range transforms {
		if !includeBoundary && t.isBoundary {
			continue
		}

		if len(mapping) > 0 && !t.startsSeq {
			last := &mapping[len(mapping)-1]
			if last.Old.File == t.filename &&
				last.Old.Start+last.Old.Extent == t.oldLine &&
				last.New.Start+last.New.Extent == t.newLine {
				last.Old.Extent++
				last.New.Extent++
				continue
			}
		}

		mapping = append(mapping, Mapping{
			Old: ranges.IndexedRange{Rev: t.rev, File: t.filename, Start: t.oldLine, Extent: 1},
			New: ranges.IndexedRange{Rev: srcRange.Rev, File: srcRange.File, Start: t.newLine, Extent: 1},
		})
	}

	return mapping, nil
}

// lineTransform is the per-blamed-line record yielded while walking the
// porcelain block headers: the source commit, whether it's a history
// boundary, and the old/new line numbers for this one line.
type lineTransform struct {
	rev        string
	filename   string
	isBoundary bool
	oldLine    int
	newLine    int
	startsSeq  bool
}

// commitProps caches the filename/boundary flag first observed for a
// commit; porcelain output gives a full block (with filename) only on a
// commit's first appearance, and a minimal block thereafter.
type commitProps struct {
	filename   string
	isBoundary bool
}

func blameTransforms(lines [][]byte) ([]lineTransform, error) {
	commitProperties := map[string]commitProps{}
	var out []lineTransform

	idx := 0
	for idx < len(lines) {
		next, rev, props, oldLine, newLine, startsSeq, err := parseBlock(lines, idx, commitProperties)
		if err != nil {
			return nil, err
		}
		idx = next

		if isZeroRev(rev) {
			// A HEAD..HEAD blame range pulls in staged changes under the
			// all-zero sentinel commit; drop them.
			continue
		}

		out = append(out, lineTransform{
			rev:        rev,
			filename:   props.filename,
			isBoundary: props.isBoundary,
			oldLine:    oldLine,
			newLine:    newLine,
			startsSeq:  startsSeq,
		})
	}

	return out, nil
}

func isZeroRev(rev string) bool {
	if rev == "" {
		return false
	}
	for _, c := range rev {
		if c != '0' {
			return false
		}
	}
	return true
}

// parseBlock consumes one porcelain block starting at idx: a header line
// ("<hash> <old> <new> [<count>]"), then either a full block (optional
// "filename"/"boundary" metadata lines, for a commit's first appearance)
// or a minimal block (nothing but the header, for a repeat appearance),
// terminated by a '\t'-prefixed source-line-content line. It returns the
// index of the next header.
func parseBlock(
	lines [][]byte,
	idx int,
	commitProperties map[string]commitProps,
) (nextIdx int, rev string, props commitProps, oldLine, newLine int, startsSeq bool, err error) {
	rev, oldLine, newLine, startsSeq, ok := parseHeader(bytes.Fields(lines[idx]))
	if !ok {
		return 0, "", commitProps{}, 0, 0, false, errs.New("parsing blame (line %d): expected header, got %q", idx+1, lines[idx])
	}

	existing, hasPrior := commitProperties[rev]

	var filename string
	isBoundary := false
	blockEnded := false

	i := idx
	for ; i < len(lines); i++ {
		line := lines[i]

		if blockEnded {
			if len(line) == 0 {
				continue
			}
			break
		}

		if len(line) > 0 && line[0] == '\t' {
			blockEnded = true
			continue
		}

		if string(line) == "boundary" {
			if hasPrior {
				return 0, "", commitProps{}, 0, 0, false, errs.New("parsing blame: unexpected boundary marker for already-seen commit %s", rev)
			}
			isBoundary = true
		}

		if fname, ok := parseFilename(bytes.Fields(line)); ok {
			if hasPrior {
				return 0, "", commitProps{}, 0, 0, false, errs.New("parsing blame: unexpected filename line for already-seen commit %s", rev)
			}
			filename = fname
		}
	}

	if hasPrior {
		props = existing
	} else {
		if filename == "" {
			return 0, "", commitProps{}, 0, 0, false, errs.New("parsing blame: no filename seen for commit %s", rev)
		}
		props = commitProps{filename: filename, isBoundary: isBoundary}
		commitProperties[rev] = props
	}

	return i, rev, props, oldLine, newLine, startsSeq, nil
}

// parseHeader parses "<hash> <old-lineno> <new-lineno> [<count>]".
func parseHeader(parts [][]byte) (rev string, oldLine, newLine int, startsSeq bool, ok bool) {
	if len(parts) < 3 || len(parts) > 4 {
		return "", 0, 0, false, false
	}
	if !isHexDigits(parts[0]) {
		return "", 0, 0, false, false
	}

	old, err := strconv.Atoi(string(parts[1]))
	if err != nil {
		return "", 0, 0, false, false
	}
	nw, err := strconv.Atoi(string(parts[2]))
	if err != nil {
		return "", 0, 0, false, false
	}

	return string(parts[0]), old, nw, len(parts) == 4, true
}

func parseFilename(parts [][]byte) (string, bool) {
	if len(parts) != 2 || string(parts[0]) != "filename" {
		return "", false
	}
	return string(parts[1]), true
}

func isHexDigits(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
