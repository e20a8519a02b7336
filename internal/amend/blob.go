package amend

import (
	"bufio"
	"context"
	"io"
	"sort"

	"github.com/wabain/git-entropy/internal/diffparse"
	"github.com/wabain/git-entropy/internal/errs"
	"github.com/wabain/git-entropy/internal/oid"
)

// AmendedBlob tracks the queued amendments to one file as of one commit,
// plus D: whatever the current rewrite stage has attached to it, nothing
// yet (NoRewrite), a handle an apply backend issued (RewriteHandle), or
// the final written blob OID (oid.OID). The same type serves all three
// stages so the branch rebuilder can pass blobs between them without a
// conversion layer.
type AmendedBlob[D any] struct {
	Commit      oid.OID
	File        string
	OID         oid.OID
	RewriteData D
	Amendments  []AmendmentRecord
}

// New returns a blob with no amendments queued yet.
func New[D any](commit oid.OID, file string, blobOID oid.OID, rewriteData D) *AmendedBlob[D] {
	return &AmendedBlob[D]{Commit: commit, File: file, OID: blobOID, RewriteData: rewriteData}
}

// ReplaceLines queues a line-range replacement, keeping Amendments sorted
// by start position and rejecting ranges that overlap an existing one. A
// byte-identical duplicate request is a silent no-op.
func (b *AmendedBlob[D]) ReplaceLines(start, extent int, newLines []byte) error {
	record := AmendmentRecord{Start: start, Extent: extent, Replacement: newLines}
	index := sort.Search(len(b.Amendments), func(i int) bool {
		return compareRecords(b.Amendments[i], record) >= 0
	})

	if index > 0 {
		prior := b.Amendments[index-1]
		if prior.Start+prior.Extent > start {
			return errs.New("overlapping amendments requested")
		}
	}

	if index < len(b.Amendments) {
		next := b.Amendments[index]
		if compareRecords(record, next) == 0 {
			return nil
		}
		if start+extent > next.Start {
			return errs.New("overlapping amendments requested")
		}
	}

	b.Amendments = append(b.Amendments, AmendmentRecord{})
	copy(b.Amendments[index+1:], b.Amendments[index:])
	b.Amendments[index] = record
	return nil
}

// WithMergedAmendments copies the blob, with rewrite data cleared back to
// NoRewrite, and folds in additional amendments. Used when a rename or
// content change against one parent needs to be combined with amendments
// already known for this blob under another parent.
func (b *AmendedBlob[D]) WithMergedAmendments(amendments []AmendmentRecord) (*AmendedBlob[NoRewrite], error) {
	out := &AmendedBlob[NoRewrite]{
		Commit:     b.Commit,
		File:       b.File,
		OID:        b.OID,
		Amendments: append([]AmendmentRecord(nil), b.Amendments...),
	}
	for _, r := range amendments {
		if err := out.ReplaceLines(r.Start, r.Extent, r.Replacement); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WithMeta copies the blob under a new (commit, file) identity, keeping
// its OID, rewrite data, and amendments. Used when a rewrite applied to
// a parent is reused verbatim for a child commit.
func (b *AmendedBlob[D]) WithMeta(commit oid.OID, file string) *AmendedBlob[D] {
	out := &AmendedBlob[D]{Commit: commit, File: file, OID: b.OID, RewriteData: b.RewriteData}
	out.Amendments = append(out.Amendments, b.Amendments...)
	return out
}

// WithRewriteData copies the blob under a new rewrite-data stage. It is a
// free function rather than a method because it changes the type
// parameter, which Go methods on a generic receiver cannot do.
func WithRewriteData[D, X any](b *AmendedBlob[D], rewriteData X) *AmendedBlob[X] {
	out := &AmendedBlob[X]{Commit: b.Commit, File: b.File, OID: b.OID, RewriteData: rewriteData}
	out.Amendments = append(out.Amendments, b.Amendments...)
	return out
}

// AdjustedByDiff re-bases this blob's amendments across a content diff
// between its old path/OID and a new one, typically the diff against a
// parent commit discovered while reconciling a rename. Every amendment
// offset shifts by the net line-count delta of each diff edit that
// precedes it; an amendment overlapping an edit's old range is rejected,
// since there's no sound way to relocate it.
func (b *AmendedBlob[D]) AdjustedByDiff(hunks []*diffparse.Hunk, commit oid.OID, file string, blobOID oid.OID) (*AmendedBlob[NoRewrite], error) {
	out := &AmendedBlob[NoRewrite]{Commit: commit, File: file, OID: blobOID}

	offset := 0
	amendIdx := 0

	var mappings []diffparse.LineMapping
	for _, h := range hunks {
		mappings = append(mappings, h.LineMappings()...)
	}

	mapIdx := 0
	for amendIdx < len(b.Amendments) && mapIdx < len(mappings) {
		amend := b.Amendments[amendIdx]
		m := mappings[mapIdx]

		if amend.Start < m.OldStart {
			if amend.Start+amend.Extent > m.OldStart {
				return nil, errs.New("amendment overlaps diff delta")
			}
			if err := out.ReplaceLines(amend.Start+offset, amend.Extent, amend.Replacement); err != nil {
				return nil, err
			}
			amendIdx++
			continue
		}

		if m.OldStart+m.OldExtent > amend.Start {
			return nil, errs.New("amendment overlaps diff delta")
		}

		offset += m.NewExtent - m.OldExtent
		mapIdx++
	}

	for ; amendIdx < len(b.Amendments); amendIdx++ {
		amend := b.Amendments[amendIdx]
		if err := out.ReplaceLines(amend.Start+offset, amend.Extent, amend.Replacement); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// BlobReader fetches a blob's content, for Write to splice amendments
// into.
type BlobReader interface {
	CatFileBlob(ctx context.Context, blob oid.OID) (io.ReadCloser, error)
}

// Write streams the blob's amended content: the original content from
// reader, with each queued AmendmentRecord's line range swapped for its
// replacement bytes.
func (b *AmendedBlob[D]) Write(ctx context.Context, reader BlobReader, output io.Writer) error {
	rc, err := reader.CatFileBlob(ctx, b.OID)
	if err != nil {
		return err
	}
	defer rc.Close()

	br := bufio.NewReader(rc)

	amendIdx := 0
	lineno := 0

	for {
		line, readErr := br.ReadBytes('\n')
		if len(line) == 0 && readErr != nil {
			break
		}
		lineno++

		for amendIdx < len(b.Amendments) {
			a := b.Amendments[amendIdx]
			if lineno < a.Start+a.Extent || (a.Extent == 0 && lineno == a.Start) {
				break
			}
			amendIdx++
		}

		if amendIdx < len(b.Amendments) {
			amend := b.Amendments[amendIdx]
			if lineno == amend.Start {
				if _, err := output.Write(amend.Replacement); err != nil {
					return err
				}
			}
			if lineno >= amend.Start && lineno < amend.Start+amend.Extent {
				if readErr != nil {
					break
				}
				continue
			}
		}

		if _, err := output.Write(line); err != nil {
			return err
		}

		if readErr != nil {
			break
		}
	}

	return nil
}
