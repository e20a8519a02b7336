// Command git-entropy absorbs a staged diff into the historical commits
// that own the lines it touches.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/wabain/git-entropy/internal/command"
	"github.com/wabain/git-entropy/internal/errs"
)

const version = "0.1.0"

type app struct {
	command.Globals
	command.Entropy
}

func main() {
	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, syscall.SIGINT)

	var a app
	ctx := kong.Parse(&a,
		kong.Name("git-entropy"),
		kong.UsageOnError(),
		kong.Vars{"version": fmt.Sprintf("git-entropy %s", version)},
	)

	if a.Globals.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- ctx.Run(&a.Globals)
	}()

	select {
	case sig := <-interrupted:
		signum, _ := sig.(syscall.Signal)
		fmt.Fprintln(os.Stderr, "interrupted")
		os.Exit(128 + int(signum))
	case err := <-runErrCh:
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var fatal *errs.Fatal
	if errors.As(err, &fatal) {
		fmt.Fprintf(os.Stderr, "fatal: %s\n", fatal.Message)
		if fatal.Extended != "" {
			fmt.Fprintln(os.Stderr, fatal.Extended)
		}
		return fatal.ReturnCode
	}

	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	return 1
}
