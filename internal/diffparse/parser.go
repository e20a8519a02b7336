// Package diffparse turns `git diff`/`git diff-index` output into Hunks and
// `git diff-tree --find-renames` output into FileDiffSummary records. The
// unified-diff parser is an explicit state machine: Initial (skipping
// diffstat noise) -> DiffHeader (collecting old/new filenames) -> InHunk
// (accumulating +/-/context ops) -> Invalid (malformed input, always
// fatal). Lines are split on '\n' only, never via a line-oriented scanner,
// because git can embed a bare CR in a diff line (see e.g. git's own
// t/t0022-crlf-rename.sh) that a scanner's newline handling would mangle.
package diffparse

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"

	"github.com/wabain/git-entropy/internal/errs"
)

type parseState int

const (
	stateInvalid parseState = iota - 1
	stateInitial
	stateDiffHeader
	stateInHunk
)

var (
	reDiffHeader = regexp.MustCompile(`^diff --git a/.* b/.*`)
	reDiffFstat  = regexp.MustCompile(`^(index|similarity index|rename|deleted file|new file) .*`)
	reDiffMode   = regexp.MustCompile(`^(old|new) mode .*`)
	reDiffOld    = regexp.MustCompile(`^--- (?:(/dev/null)|a/(.*))`)
	reDiffNew    = regexp.MustCompile(`^\+\+\+ (?:(/dev/null)|b/(.*))`)
	reHunk       = regexp.MustCompile(`^@@ -(\d+)(?:,\d+)? \+(\d+)(?:,\d+)? @@`)
	reDiffBinary = regexp.MustCompile(`^Binary files .* and .* differ$`)
)

// headerAttrs accumulates the old/new filenames seen while in DiffHeader
// state, ahead of the first hunk.
type headerAttrs struct {
	oldFile, newFile         *string
	oldFileSeen, newFileSeen bool
}

// hunkAttrs accumulates ops while in InHunk state.
type hunkAttrs struct {
	oldFile, newFile   *string
	oldStart, newStart int
	ops                []Op
}

// ParseHunks parses a unified diff (as produced by `git diff`/`git
// diff-index --patch`) into its constituent Hunks. It returns a *errs.Fatal
// on malformed input, with an extended context-lines dump.
func ParseHunks(diff []byte) ([]*Hunk, error) {
	var hunks []*Hunk

	state := stateInitial
	var header headerAttrs
	var hunk *hunkAttrs

	lines := bytes.Split(diff, []byte("\n"))

	for i, line := range lines {
		var completed *hunkAttrs

		switch state {
		case stateInitial:
			if !reDiffHeader.Match(line) {
				// Ignore leading diffstat output.
				continue
			}
			header = headerAttrs{}
			state = stateDiffHeader

		case stateDiffHeader:
			next, started, err := handleDiffHeader(&header, line)
			if err != nil {
				return nil, err
			}
			switch next {
			case diffHeaderContinue:
				// stay in DiffHeader
			case diffHeaderRestart:
				header = headerAttrs{}
			case diffHeaderHunkStart:
				hunk = started
				state = stateInHunk
			case diffHeaderInvalid:
				state = stateInvalid
			}

		case stateInHunk:
			next, err := handleInHunk(hunk, line)
			if err != nil {
				return nil, err
			}
			switch next.kind {
			case inHunkContinue:
				// stay in InHunk
			case inHunkNewDiffHeader:
				completed = hunk
				header = headerAttrs{}
				state = stateDiffHeader
			case inHunkNewHunk:
				completed = hunk
				hunk = next.hunk
			case inHunkInvalid:
				state = stateInvalid
			}
		}

		if state == stateInvalid {
			return nil, errs.New("unexpected diff content at line %d", i+1).
				WithExtended(buildContextLines(lines, i))
		}

		if completed != nil {
			hunks = append(hunks, completed.toHunk())
		}
	}

	if state != stateInitial && state != stateInHunk {
		return nil, errs.New("unexpected end of diff").
			WithExtended(buildContextLines(lines, len(lines)))
	}

	if state == stateInitial && anyNonEmpty(lines) {
		return nil, errs.New("unable to locate diff content").
			WithExtended(buildContextLines(lines, 0))
	}

	if state == stateInHunk {
		hunks = append(hunks, hunk.toHunk())
	}

	return hunks, nil
}

type diffHeaderTransition int

const (
	diffHeaderContinue diffHeaderTransition = iota
	diffHeaderRestart
	diffHeaderHunkStart
	diffHeaderInvalid
)

func handleDiffHeader(attrs *headerAttrs, line []byte) (diffHeaderTransition, *hunkAttrs, error) {
	if reDiffFstat.Match(line) || reDiffMode.Match(line) {
		return diffHeaderContinue, nil, nil
	}

	if reDiffHeader.Match(line) || reDiffBinary.Match(line) {
		// Empty/binary files are dropped; their hunk-less diff produces
		// no edits to attribute.
		return diffHeaderRestart, nil, nil
	}

	if m := reDiffOld.FindSubmatch(line); m != nil {
		if attrs.oldFileSeen {
			return diffHeaderInvalid, nil, nil
		}
		attrs.oldFile = fnameOrNil(m[1], m[2])
		attrs.oldFileSeen = true
		return diffHeaderContinue, nil, nil
	}

	if m := reDiffNew.FindSubmatch(line); m != nil {
		if attrs.newFileSeen {
			return diffHeaderInvalid, nil, nil
		}
		attrs.newFile = fnameOrNil(m[1], m[2])
		attrs.newFileSeen = true
		return diffHeaderContinue, nil, nil
	}

	if m := reHunk.FindSubmatch(line); m != nil {
		if !(attrs.oldFileSeen && attrs.newFileSeen) {
			return diffHeaderInvalid, nil, nil
		}
		return diffHeaderHunkStart, startHunkFromMatch(attrs.oldFile, attrs.newFile, m), nil
	}

	return diffHeaderInvalid, nil, nil
}

func fnameOrNil(devnull, fname []byte) *string {
	if len(devnull) > 0 {
		return nil
	}
	s := string(fname)
	return &s
}

type inHunkKind int

const (
	inHunkContinue inHunkKind = iota
	inHunkNewDiffHeader
	inHunkNewHunk
	inHunkInvalid
)

type inHunkResult struct {
	kind inHunkKind
	hunk *hunkAttrs
}

func handleInHunk(attrs *hunkAttrs, line []byte) (inHunkResult, error) {
	if reDiffHeader.Match(line) {
		return inHunkResult{kind: inHunkNewDiffHeader}, nil
	}

	if m := reHunk.FindSubmatch(line); m != nil {
		next := startHunkFromMatch(attrs.oldFile, attrs.newFile, m)
		return inHunkResult{kind: inHunkNewHunk, hunk: next}, nil
	}

	if len(line) == 0 {
		// Observed occasionally in the wild; tolerate it.
		return inHunkResult{kind: inHunkContinue}, nil
	}

	marker, remainder := line[0], line[1:]

	if marker == '\\' {
		// "\ No newline at end of file"
		if len(attrs.ops) == 0 {
			return inHunkResult{kind: inHunkInvalid}, nil
		}
		last := &attrs.ops[len(attrs.ops)-1]
		if len(last.Line) == 0 || last.Line[len(last.Line)-1] != '\n' {
			return inHunkResult{kind: inHunkInvalid}, nil
		}
		last.Line = last.Line[:len(last.Line)-1]
		return inHunkResult{kind: inHunkContinue}, nil
	}

	lineType, ok := lineTypeFromByte(marker)
	if !ok {
		return inHunkResult{kind: inHunkInvalid}, nil
	}

	content := make([]byte, len(remainder)+1)
	copy(content, remainder)
	content[len(remainder)] = '\n'

	attrs.ops = append(attrs.ops, Op{Type: lineType, Line: content})
	return inHunkResult{kind: inHunkContinue}, nil
}

func startHunkFromMatch(oldFile, newFile *string, m [][]byte) *hunkAttrs {
	oldStart, _ := strconv.Atoi(string(m[1]))
	newStart, _ := strconv.Atoi(string(m[2]))
	return &hunkAttrs{
		oldFile:  oldFile,
		newFile:  newFile,
		oldStart: oldStart,
		newStart: newStart,
	}
}

func (h *hunkAttrs) toHunk() *Hunk {
	return &Hunk{
		OldFile:  h.oldFile,
		NewFile:  h.newFile,
		OldStart: h.oldStart,
		NewStart: h.newStart,
		Ops:      h.ops,
	}
}

func anyNonEmpty(lines [][]byte) bool {
	for _, l := range lines {
		if len(l) > 0 {
			return true
		}
	}
	return false
}

// buildContextLines renders +/-5 lines of context around lineIndex for a
// Fatal's extended diagnostic, numbering from 1.
func buildContextLines(lines [][]byte, lineIndex int) string {
	start := lineIndex - 5
	if start < 0 {
		start = 0
	}
	end := lineIndex + 5
	if end > len(lines) {
		end = len(lines)
	}

	padding := len(strconv.Itoa(lineIndex + 5))
	if padding < 3 {
		padding = 3
	}

	var out []string
	for i := start; i < end; i++ {
		out = append(out, fmt.Sprintf("%-*d %s", padding, i+1, lines[i]))
	}
	return joinLines(out)
}

func joinLines(lines []string) string {
	var buf bytes.Buffer
	for i, l := range lines {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(l)
	}
	return buf.String()
}
