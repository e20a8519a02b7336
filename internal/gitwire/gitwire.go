// Package gitwire is the typed VCS command surface this tool drives: one
// function per git operation it needs, each a thin, typed wrapper over
// internal/vcsexec.
//
// Every function here may block on subprocess I/O and should always be
// called with a context that the caller is prepared to cancel.
package gitwire

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wabain/git-entropy/internal/errs"
	"github.com/wabain/git-entropy/internal/oid"
	"github.com/wabain/git-entropy/internal/vcsexec"
)

// Repo is a bound handle for running VCS commands against one repository
// working directory.
type Repo struct {
	Path string

	// Debug, if non-nil, is invoked with the fully-built command line
	// before every invocation. It is typed as a plain function rather
	// than the CLI's Debuger interface so this package has no
	// dependency on the CLI layer.
	Debug func(format string, args ...any)
}

func (r *Repo) trace(args []string) {
	if r.Debug != nil {
		r.Debug("git %s", strings.Join(args, " "))
	}
}

func (r *Repo) run(ctx context.Context, opt *vcsexec.RunOpts, args ...string) ([]byte, error) {
	r.trace(args)
	if opt == nil {
		opt = &vcsexec.RunOpts{}
	}
	opt.RepoPath = r.Path
	cmd := vcsexec.NewFromOptions(ctx, opt, "git", args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, errs.New("git %s", strings.Join(args, " ")).
			WithExtended(vcsexec.FromError(err)).
			WithReturnCode(vcsexec.FromErrorCode(err))
	}
	return out, nil
}

// RevParseVerify resolves a revision expression to an OID, surfacing the
// VCS's own exit code on failure.
func (r *Repo) RevParseVerify(ctx context.Context, rev string) (oid.OID, error) {
	out, err := r.run(ctx, nil, "rev-parse", "--verify", rev)
	if err != nil {
		fe := err.(*errs.Fatal)
		return oid.OID{}, errs.New("invalid revision %q", rev).
			WithExtended(fe.Extended).
			WithReturnCode(fe.ReturnCode)
	}
	return oid.FromHex(strings.TrimSpace(string(out)))
}

// DiffIndexCachedPatch runs the initial staged-diff invocation this tool's
// CLI driver feeds into the diff parser.
func (r *Repo) DiffIndexCachedPatch(ctx context.Context, head oid.OID, paths []string) ([]byte, error) {
	args := []string{"diff-index", "--cached", "--find-renames", "--patch", "--no-indent-heuristic", head.String()}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}
	return r.run(ctx, nil, args...)
}

// Blame runs the porcelain line-attribution command over [start, start+extent)
// of file at revOrRange.
func (r *Repo) Blame(ctx context.Context, revOrRange string, start, extent int, file string) ([]byte, error) {
	if extent == 0 {
		return nil, nil
	}
	return r.run(ctx, nil, "blame", "--porcelain",
		fmt.Sprintf("-L%d,+%d", start, extent), revOrRange, "--", file)
}

// RevListAncestryPath lists parent-decorated commits reachable from head
// but not from root's ancestors, for partial commit-graph construction.
func (r *Repo) RevListAncestryPath(ctx context.Context, head, root oid.OID) ([]byte, error) {
	return r.run(ctx, nil, "rev-list", "--parents", "--ancestry-path",
		head.String(), "^"+root.String())
}

// RevListNoWalkParents lists the immediate parents of each given rev
// without walking further, used to pick up the roots' own parents.
func (r *Repo) RevListNoWalkParents(ctx context.Context, revs []oid.OID) ([]byte, error) {
	if len(revs) == 0 {
		return nil, nil
	}
	args := []string{"rev-list", "--parents", "--no-walk"}
	for _, rv := range revs {
		args = append(args, rv.String())
	}
	return r.run(ctx, nil, args...)
}

// TreeEntry is one line of a tree listing.
type TreeEntry struct {
	Mode string
	Kind string // "blob", "tree", "commit" (submodule)
	OID  oid.OID
	Path string
}

// LsTree lists a tree, optionally recursively, optionally restricted to a
// single path (the common case is a recursive full listing or a
// non-recursive single-directory listing for tree rebuilding).
func (r *Repo) LsTree(ctx context.Context, treeish string, recursive bool, path string) ([]TreeEntry, error) {
	args := []string{"ls-tree"}
	if recursive {
		args = append(args, "-r")
	}
	args = append(args, treeish)
	if path != "" {
		args = append(args, "--", path)
	}
	out, err := r.run(ctx, nil, args...)
	if err != nil {
		return nil, err
	}
	return parseLsTree(out)
}

// BlobOIDAtPath resolves the blob OID for path as it exists at rev. It
// mirrors the original IndexedRange.oid() lookup: a single-entry ls-tree
// call, rejecting anything that isn't a blob.
func (r *Repo) BlobOIDAtPath(ctx context.Context, rev, path string) (oid.OID, error) {
	entries, err := r.LsTree(ctx, rev, false, path)
	if err != nil {
		return oid.Zero, err
	}
	if len(entries) == 0 {
		return oid.Zero, errs.New("no listing for %q at %s", path, rev)
	}
	entry := entries[0]
	if entry.Kind != "blob" {
		return oid.Zero, errs.New("expected %q at %s to be blob; got %q", path, rev, entry.Kind)
	}
	return entry.OID, nil
}

func parseLsTree(out []byte) ([]TreeEntry, error) {
	var entries []TreeEntry
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		meta, path, ok := bytes.Cut(line, []byte("\t"))
		if !ok {
			return nil, errs.New("ls-tree: malformed line %q", line)
		}
		fields := bytes.Fields(meta)
		if len(fields) != 3 {
			return nil, errs.New("ls-tree: malformed metadata %q", meta)
		}
		o, err := oid.FromHex(string(fields[2]))
		if err != nil {
			return nil, errs.Wrap(err, "ls-tree: bad oid")
		}
		entries = append(entries, TreeEntry{
			Mode: string(fields[0]),
			Kind: string(fields[1]),
			OID:  o,
			Path: string(path),
		})
	}
	return entries, sc.Err()
}

// DiffTreeFindRenames produces the raw tree-diff summary between two
// commits with rename detection enabled, for internal/diffparse's
// tree-diff summary parser.
func (r *Repo) DiffTreeFindRenames(ctx context.Context, parent, commit oid.OID) ([]byte, error) {
	return r.run(ctx, nil, "diff-tree", "-r", "--find-renames", parent.String(), commit.String())
}

// DiffBlobsPatchWithRaw produces a unified diff between two blob OIDs
// (with the raw header line) for the line-mapping re-basing step.
func (r *Repo) DiffBlobsPatchWithRaw(ctx context.Context, oldBlob, newBlob oid.OID) ([]byte, error) {
	return r.run(ctx, nil, "diff", "--patch-with-raw", oldBlob.String(), newBlob.String())
}

// CatFileBlob streams the content of a blob.
func (r *Repo) CatFileBlob(ctx context.Context, blob oid.OID) (io.ReadCloser, error) {
	r.trace([]string{"cat-file", "-p", blob.String()})
	cmd := vcsexec.New(ctx, r.Path, "git", "cat-file", "-p", blob.String())
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &commandReader{cmd: cmd, reader: stdout}, nil
}

type commandReader struct {
	cmd    *vcsexec.Command
	reader io.ReadCloser
}

func (c *commandReader) Read(p []byte) (int, error) { return c.reader.Read(p) }
func (c *commandReader) Close() error {
	_ = c.reader.Close()
	return c.cmd.Wait()
}

// Identity is an author/committer identity as read from a commit, carrying
// the raw (--date=raw) timestamp so it can be re-emitted byte-for-byte.
type Identity struct {
	Name  string
	Email string
	Date  string
}

// CommitMeta is a commit listing entry.
type CommitMeta struct {
	OID       oid.OID
	Tree      oid.OID
	Parents   []oid.OID
	Author    Identity
	Committer Identity
	Message   []byte
}

const commitFormat = "%H%x00%T%x00%P%x00%an%x00%ae%x00%ad%x00%cn%x00%ce%x00%cd%x00%B"

// CatFileCommit fetches one commit's metadata using a `rev-list --max-count=1
// --format=...` invocation with stable, raw timestamps.
func (r *Repo) CatFileCommit(ctx context.Context, commit oid.OID) (*CommitMeta, error) {
	out, err := r.run(ctx, nil, "rev-list", "--max-count=1",
		"--format="+commitFormat, "--date=raw", commit.String())
	if err != nil {
		return nil, err
	}
	// rev-list --format prints the commit line "commit <oid>" first.
	_, rest, ok := bytes.Cut(out, []byte("\n"))
	if !ok {
		return nil, errs.New("cat-file commit %s: unexpected output", commit)
	}
	// %H %T %P %an %ae %ad %cn %ce %cd %B, NUL-separated: 10 fields.
	fields := bytes.SplitN(rest, []byte{0}, 10)
	if len(fields) != 10 {
		return nil, errs.New("cat-file commit %s: expected 10 fields, got %d", commit, len(fields))
	}

	meta := &CommitMeta{OID: commit}
	var perr error
	meta.Tree, perr = oid.FromHex(string(fields[1]))
	if perr != nil {
		return nil, errs.Wrap(perr, "cat-file commit %s: bad tree", commit)
	}
	for _, p := range bytes.Fields(fields[2]) {
		po, err := oid.FromHex(string(p))
		if err != nil {
			return nil, errs.Wrap(err, "cat-file commit %s: bad parent", commit)
		}
		meta.Parents = append(meta.Parents, po)
	}
	meta.Author = Identity{Name: string(fields[3]), Email: string(fields[4]), Date: string(fields[5])}
	meta.Committer = Identity{Name: string(fields[6]), Email: string(fields[7]), Date: string(fields[8])}
	// --format terminates each formatted entry with a newline of its own,
	// after the one that ends %B.
	meta.Message = bytes.TrimSuffix(fields[9], []byte("\n"))
	return meta, nil
}

// HashObjectBlob streams r into the VCS object store as a new blob,
// returning its OID.
func (r *Repo) HashObjectBlob(ctx context.Context, content io.Reader) (oid.OID, error) {
	r.trace([]string{"hash-object", "-t", "blob", "-w", "--stdin"})
	cmd := vcsexec.NewFromOptions(ctx, &vcsexec.RunOpts{RepoPath: r.Path, Stdin: content},
		"git", "hash-object", "-t", "blob", "-w", "--stdin")
	out, err := cmd.Output()
	if err != nil {
		return oid.OID{}, errs.New("hash-object").
			WithExtended(vcsexec.FromError(err)).
			WithReturnCode(vcsexec.FromErrorCode(err))
	}
	return oid.FromHex(strings.TrimSpace(string(out)))
}

// MkTree builds a tree object from entries (which must already be sorted
// the way git expects; callers build it deepest-first per directory, which
// is naturally already-sorted within one directory's entries).
func (r *Repo) MkTree(ctx context.Context, entries []TreeEntry) (oid.OID, error) {
	var buf bytes.Buffer
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "%s %s %s\t%s", e.Mode, e.Kind, e.OID, e.Path)
	}
	r.trace([]string{"mktree", "--missing"})
	cmd := vcsexec.NewFromOptions(ctx, &vcsexec.RunOpts{RepoPath: r.Path, Stdin: &buf},
		"git", "mktree", "--missing")
	out, err := cmd.Output()
	if err != nil {
		return oid.OID{}, errs.New("mktree").
			WithExtended(vcsexec.FromError(err)).
			WithReturnCode(vcsexec.FromErrorCode(err))
	}
	return oid.FromHex(strings.TrimSpace(string(out)))
}

// CommitTree builds a new commit object, preserving the given author and
// committer identities verbatim via environment overrides, and piping
// message on stdin.
func (r *Repo) CommitTree(ctx context.Context, tree oid.OID, parents []oid.OID, author, committer Identity, message []byte) (oid.OID, error) {
	args := []string{"commit-tree", tree.String()}
	for _, p := range parents {
		args = append(args, "-p", p.String())
	}
	r.trace(args)
	extra := append([]string{}, vcsexec.CommitEnv(
		vcsexec.Identity{Name: author.Name, Email: author.Email, Date: author.Date},
		vcsexec.Identity{Name: committer.Name, Email: committer.Email, Date: committer.Date},
	)...)
	cmd := vcsexec.NewFromOptions(ctx, &vcsexec.RunOpts{
		RepoPath: r.Path,
		ExtraEnv: extra,
		Stdin:    bytes.NewReader(message),
	}, "git", args...)
	out, err := cmd.Output()
	if err != nil {
		return oid.OID{}, errs.New("commit-tree").
			WithExtended(vcsexec.FromError(err)).
			WithReturnCode(vcsexec.FromErrorCode(err))
	}
	return oid.FromHex(strings.TrimSpace(string(out)))
}

// RangeDiff displays a range-diff between two head revisions directly to
// the caller's stdout (a preview the CLI shows before confirming).
func (r *Repo) RangeDiff(ctx context.Context, oldHead, newHead oid.OID, stdout io.Writer) error {
	out, err := r.run(ctx, nil, "range-diff",
		fmt.Sprintf("%s...%s", oldHead, newHead))
	if err != nil {
		return err
	}
	_, err = stdout.Write(out)
	return err
}

// DiffStaged displays the staged diff against newHead directly to stdout.
func (r *Repo) DiffStaged(ctx context.Context, newHead oid.OID, stdout io.Writer) error {
	out, err := r.run(ctx, nil, "diff", "--staged", newHead.String())
	if err != nil {
		return err
	}
	_, err = stdout.Write(out)
	return err
}

// UpdateRef moves a reference, recording oldOID as the expected prior
// value (so the update fails if something else moved the ref concurrently)
// and reason as the reflog message.
func (r *Repo) UpdateRef(ctx context.Context, ref string, newOID, oldOID oid.OID, reason string) error {
	_, err := r.run(ctx, nil, "update-ref", "-m", reason, ref, newOID.String(), oldOID.String())
	return err
}

