package gitwire

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wabain/git-entropy/internal/oid"
)

// initRepo creates a throwaway repository with one commit containing
// path=content, returning a Repo bound to it and the commit OID.
func initRepo(t *testing.T) (*Repo, string) {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) string {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=Test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=Test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
		return strings.TrimSpace(string(out))
	}
	run("init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\nthree\n"), 0o644))
	run("add", "a.txt")
	run("commit", "-q", "-m", "initial")
	head := run("rev-parse", "HEAD")
	return &Repo{Path: dir}, head
}

func TestRevParseVerify(t *testing.T) {
	r, head := initRepo(t)
	o, err := r.RevParseVerify(context.Background(), "HEAD")
	require.NoError(t, err)
	require.Equal(t, head, o.String())
}

func TestRevParseVerifyInvalidRevision(t *testing.T) {
	r, _ := initRepo(t)
	_, err := r.RevParseVerify(context.Background(), "not-a-rev")
	require.Error(t, err)
}

func TestLsTree(t *testing.T) {
	r, head := initRepo(t)
	entries, err := r.LsTree(context.Background(), head, true, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a.txt", entries[0].Path)
	require.Equal(t, "blob", entries[0].Kind)
}

func TestCatFileCommit(t *testing.T) {
	r, head := initRepo(t)
	headOID, err := oid.FromHex(head)
	require.NoError(t, err)
	meta, err := r.CatFileCommit(context.Background(), headOID)
	require.NoError(t, err)
	require.Equal(t, "Test", meta.Author.Name)
	require.Equal(t, "test@example.com", meta.Author.Email)
	require.Empty(t, meta.Parents)
	require.Equal(t, "initial\n", string(meta.Message))
}

func TestHashObjectAndCatFileBlobRoundTrip(t *testing.T) {
	r, _ := initRepo(t)
	o, err := r.HashObjectBlob(context.Background(), strings.NewReader("hello\n"))
	require.NoError(t, err)

	rc, err := r.CatFileBlob(context.Background(), o)
	require.NoError(t, err)
	defer rc.Close()
	buf := make([]byte, 16)
	n, _ := rc.Read(buf)
	require.Equal(t, "hello\n", string(buf[:n]))
}

