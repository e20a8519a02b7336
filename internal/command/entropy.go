package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/wabain/git-entropy/internal/amend"
	"github.com/wabain/git-entropy/internal/apply"
	"github.com/wabain/git-entropy/internal/config"
	"github.com/wabain/git-entropy/internal/diffparse"
	"github.com/wabain/git-entropy/internal/errs"
	"github.com/wabain/git-entropy/internal/gitwire"
	"github.com/wabain/git-entropy/internal/oid"
	"github.com/wabain/git-entropy/internal/rebuild"
)

// Entropy is the root command: absorb the staged diff into the commits
// that own the lines it touches, then optionally move HEAD to the
// rewritten result.
type Entropy struct {
	Upstream string   `arg:"" optional:"" name:"upstream" help:"Lower-bound commit for line attribution; mutually exclusive with --root"`
	Paths    []string `arg:"" optional:"" name:"paths" help:"Restrict the initial staged diff to these paths"`

	Root     bool `name:"root" help:"Attribute lines all the way back to the repository root instead of a specific upstream commit"`
	NoUpdate bool `name:"no-update" help:"Compute and display the rewrite but do not move HEAD"`
}

func (c *Entropy) Run(g *Globals) error {
	ctx := context.Background()

	cwd := g.CWD
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errs.Wrap(err, "resolve working directory")
		}
		cwd = wd
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return err
	}
	if c.Upstream == "" && !c.Root && cfg.Root != "" {
		c.Upstream = cfg.Root
	}
	if !c.NoUpdate && cfg.NoUpdate {
		c.NoUpdate = true
	}

	if (c.Upstream == "") == !c.Root {
		return errs.New("exactly one of upstream or --root is required")
	}

	repo := &gitwire.Repo{Path: cwd, Debug: g.DbgPrint}

	head, err := repo.RevParseVerify(ctx, "HEAD")
	if err != nil {
		return err
	}

	var rootOID *oid.OID
	if !c.Root {
		resolved, err := repo.RevParseVerify(ctx, c.Upstream)
		if err != nil {
			return err
		}
		rootOID = &resolved
	}

	diff, err := repo.DiffIndexCachedPatch(ctx, head, c.Paths)
	if err != nil {
		return err
	}
	hunks, err := diffparse.ParseHunks(diff)
	if err != nil {
		return err
	}
	if len(hunks) == 0 {
		fmt.Fprintln(os.Stdout, "nothing staged to absorb")
		return nil
	}

	plan := amend.NewPlan(head, rootOID, repo)
	for _, hunk := range hunks {
		if err := plan.AddHunk(ctx, hunk); err != nil {
			return err
		}
	}

	if !plan.HasAmendments() {
		fmt.Fprintln(os.Stdout, "nothing could be attributed to a historical commit")
		return nil
	}

	backend := apply.NewBackend(repo, cfg.QueueCap)
	newHead, err := rebuild.Write(ctx, head, plan.Amendments(), repo, backend)
	if err != nil {
		backend.Cancel()
		return err
	}

	if err := repo.RangeDiff(ctx, head, newHead, os.Stdout); err != nil {
		return err
	}
	if err := repo.DiffStaged(ctx, newHead, os.Stdout); err != nil {
		return err
	}

	if c.NoUpdate {
		fmt.Fprintln(os.Stdout, newHead)
		return nil
	}

	ok, err := confirm(os.Stdin, os.Stdout, "proceed? [y/N] ")
	if err != nil {
		return errs.Wrap(err, "read confirmation")
	}
	if !ok {
		return nil
	}

	if err := repo.UpdateRef(ctx, "HEAD", newHead, head, "git-entropy: absorb"); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, newHead)
	return nil
}

// confirm prompts on w and reads a single line from r, proceeding only on
// an explicit y/Y. A non-terminal stdin (piped input, a script) declines
// without blocking, rather than waiting on input nobody will supply.
// EOF with nothing typed is also a decline; any other read error is
// returned to the caller.
func confirm(r io.Reader, w io.Writer, prompt string) (bool, error) {
	if f, ok := r.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return false, nil
	}

	fmt.Fprint(w, prompt)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y", nil
}
