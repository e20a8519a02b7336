// Package command implements the CLI surface: the global flags shared by
// every subcommand and the root Entropy command that drives the absorb
// workflow end to end.
package command

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/wabain/git-entropy/internal/trace"
)

// Globals holds the flags available to every command, following
// pkg/command.Globals in shape: a verbosity switch, a version flag that
// short-circuits the run, and the working directory to operate in.
type Globals struct {
	Verbose bool        `short:"V" name:"verbose" help:"Trace every VCS subprocess invocation to stderr"`
	Version VersionFlag `short:"v" name:"version" help:"Show version number and quit"`
	CWD     string      `name:"cwd" help:"Set the path to the repository working tree" type:"existingdir"`
}

// DbgPrint satisfies trace.Debuger: callers below the CLI layer take a
// Debuger rather than depending on this package.
func (g *Globals) DbgPrint(format string, args ...any) {
	if !g.Verbose {
		return
	}
	trace.DbgPrint(format, args...)
}

var _ trace.Debuger = &Globals{}

// VersionFlag prints the tool's version and exits, in the style of
// pkg/command.VersionFlag.
type VersionFlag bool

func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                         { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Fprintln(os.Stdout, vars["version"])
	app.Exit(0)
	return nil
}
