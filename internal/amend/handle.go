package amend

import "github.com/wabain/git-entropy/internal/oid"

// ParentRef is a rewritten commit's parent list entry: either an OID
// passed through unchanged, or a RewriteHandle for a parent that is
// itself being rewritten and not yet materialized.
type ParentRef struct {
	OID    oid.OID
	Handle *RewriteHandle
}

// ParentOID returns a ParentRef for a parent that isn't being rewritten.
func ParentOID(o oid.OID) ParentRef { return ParentRef{OID: o} }

// ParentHandle returns a ParentRef for a parent awaiting materialization.
func ParentHandle(h RewriteHandle) ParentRef { return ParentRef{Handle: &h} }

// Blob is the type-erased view of an AmendedBlob used at the boundary
// with an apply backend, where the branch rebuilder's coalesced list is
// a genuine mix of not-yet-handled blobs (AmendedBlob[NoRewrite]) and
// blobs reused verbatim from a parent's rewrite (AmendedBlob[RewriteHandle]).
// Go generics can't express that union directly on one slice, so the
// coalescing step flattens to this carrier right before submission; the
// apply backend hands back a homogeneous []*AmendedBlob[RewriteHandle]
// once every blob has a handle.
type Blob struct {
	Commit     oid.OID
	File       string
	OID        oid.OID
	Handle     *RewriteHandle
	Amendments []AmendmentRecord
}

// BlobFromNoRewrite erases an unhandled AmendedBlob to a Blob.
func BlobFromNoRewrite(b *AmendedBlob[NoRewrite]) Blob {
	return Blob{Commit: b.Commit, File: b.File, OID: b.OID, Amendments: b.Amendments}
}

// BlobFromRewriteHandle erases an already-handled AmendedBlob to a Blob,
// carrying its handle through so the backend recognizes it as already
// scheduled rather than assigning a fresh one.
func BlobFromRewriteHandle(b *AmendedBlob[RewriteHandle]) Blob {
	h := b.RewriteData
	return Blob{Commit: b.Commit, File: b.File, OID: b.OID, Handle: &h, Amendments: b.Amendments}
}
