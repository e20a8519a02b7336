package diffparse

import (
	"bytes"
	"regexp"
	"strconv"

	"github.com/wabain/git-entropy/internal/errs"
	"github.com/wabain/git-entropy/internal/oid"
)

var (
	reTreeFile   = regexp.MustCompile(`^:(\d+) (\d+) ([a-f0-9]+) ([a-f0-9]+) ([^R])\t(.*)`)
	reTreeRename = regexp.MustCompile(`^:(\d+) (\d+) ([a-f0-9]+) ([a-f0-9]+) R(\d+)\t(.*)\t(.*)`)
)

// FileDiffSummary is one line of `git diff-tree --find-renames` raw
// output: a single file's mode/OID/path delta between two trees.
type FileDiffSummary struct {
	OldMode, NewMode string
	OldOID, NewOID   oid.OID
	DeltaType        string
	Similarity       *int
	OldPath, NewPath string
}

// ParseTreeSummary parses the raw `:old_mode new_mode old_oid new_oid
// type[similarity]\told_path[\tnew_path]` lines produced by diff-tree.
func ParseTreeSummary(raw []byte) ([]FileDiffSummary, error) {
	lines := bytes.Split(raw, []byte("\n"))
	var out []FileDiffSummary

	for idx, line := range lines {
		if len(line) == 0 {
			continue
		}

		if m := reTreeRename.FindSubmatch(line); m != nil {
			oldOID, err := oid.FromHex(string(m[3]))
			if err != nil {
				return nil, errs.Wrap(err, "diff-tree: bad old oid on line %d", idx+1)
			}
			newOID, err := oid.FromHex(string(m[4]))
			if err != nil {
				return nil, errs.Wrap(err, "diff-tree: bad new oid on line %d", idx+1)
			}
			similarity, _ := strconv.Atoi(string(m[5]))

			out = append(out, FileDiffSummary{
				OldMode:    string(m[1]),
				NewMode:    string(m[2]),
				OldOID:     oldOID,
				NewOID:     newOID,
				DeltaType:  "R",
				Similarity: &similarity,
				OldPath:    string(m[6]),
				NewPath:    string(m[7]),
			})
			continue
		}

		m := reTreeFile.FindSubmatch(line)
		if m == nil {
			return nil, errs.New("unable to parse diff-tree output line %d:", idx+1).
				WithExtended(buildContextLines(lines, idx))
		}

		oldOID, err := oid.FromHex(string(m[3]))
		if err != nil {
			return nil, errs.Wrap(err, "diff-tree: bad old oid on line %d", idx+1)
		}
		newOID, err := oid.FromHex(string(m[4]))
		if err != nil {
			return nil, errs.Wrap(err, "diff-tree: bad new oid on line %d", idx+1)
		}

		path := string(m[6])
		oldPath, newPath := "", path
		if !oldOID.IsZero() {
			oldPath = path
		}
		if newOID.IsZero() {
			newPath = ""
		}

		out = append(out, FileDiffSummary{
			OldMode:   string(m[1]),
			NewMode:   string(m[2]),
			OldOID:    oldOID,
			NewOID:    newOID,
			DeltaType: string(m[5]),
			OldPath:   oldPath,
			NewPath:   newPath,
		})
	}

	return out, nil
}
