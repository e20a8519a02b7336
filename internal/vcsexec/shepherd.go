package vcsexec

import (
	"context"
	"io"
	"os/exec"
	"sync/atomic"
)

// RunOpts configures a single invocation.
type RunOpts struct {
	Environ  []string  // full replacement environment; defaults to Environ() if empty
	ExtraEnv []string  // appended on top of Environ
	RepoPath string    // working directory (the repository's git-dir or worktree)
	Stderr   io.Writer // nil captures into a bounded buffer on Output()
	Stdout   io.Writer
	Stdin    io.Reader
	Detached bool // if true, the child outlives this process's own termination
}

// Shepherd creates commands and tracks how many are currently running, so
// the apply backend's bounded queue has an observable backing metric.
type Shepherd interface {
	NewFromOptions(ctx context.Context, opt *RunOpts, name string, arg ...string) *Command
	New(ctx context.Context, repoPath string, name string, arg ...string) *Command
	ProcessesCount() int32
}

type shepherd struct {
	count int32
}

func (s *shepherd) inc() int32 { return atomic.AddInt32(&s.count, 1) }
func (s *shepherd) dec() int32 { return atomic.AddInt32(&s.count, -1) }

func (s *shepherd) ProcessesCount() int32 {
	return atomic.LoadInt32(&s.count)
}

// NewShepherd returns a fresh, independently-counted Shepherd.
func NewShepherd() Shepherd {
	return &shepherd{}
}

func (s *shepherd) New(ctx context.Context, repoPath string, name string, arg ...string) *Command {
	return s.NewFromOptions(ctx, &RunOpts{RepoPath: repoPath}, name, arg...)
}

func (s *shepherd) NewFromOptions(ctx context.Context, opt *RunOpts, name string, arg ...string) *Command {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Dir = opt.RepoPath
	if len(opt.Environ) == 0 {
		cmd.Env = append(cmd.Env, Environ()...)
	} else {
		cmd.Env = append(cmd.Env, opt.Environ...)
	}
	if len(opt.ExtraEnv) != 0 {
		cmd.Env = append(cmd.Env, opt.ExtraEnv...)
	}
	cmd.Stderr = opt.Stderr
	cmd.Stdout = opt.Stdout
	cmd.Stdin = opt.Stdin
	setSysProcAttribute(cmd, opt.Detached)
	return &Command{rawCmd: cmd, ctx: ctx, s: s, detached: opt.Detached}
}

// sd is the process-wide default shepherd used by the package-level
// convenience constructors.
var sd = NewShepherd()

func NewFromOptions(ctx context.Context, opt *RunOpts, name string, arg ...string) *Command {
	return sd.NewFromOptions(ctx, opt, name, arg...)
}

func New(ctx context.Context, repoPath string, name string, arg ...string) *Command {
	return sd.New(ctx, repoPath, name, arg...)
}

func ProcessesCount() int32 {
	return sd.ProcessesCount()
}
