// Package trace provides the user-facing verbose-tracing helper used to
// announce VCS subprocess invocations on stderr when -V is set.
package trace

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// Debuger is satisfied by anything that can emit a verbose trace line,
// gated on whether verbose tracing is actually enabled. CLI-level code
// passes its Globals; library code that has no business depending on the
// CLI package takes a Debuger instead.
type Debuger interface {
	DbgPrint(format string, args ...any)
}

// NewDebuger returns a Debuger that only emits when verbose is true.
func NewDebuger(verbose bool) Debuger {
	return &debuger{verbose: verbose}
}

type debuger struct {
	verbose bool
}

func (d debuger) DbgPrint(format string, args ...any) {
	if !d.verbose {
		return
	}
	DbgPrint(format, args...)
}

// DbgPrint writes a trace line to stderr, coloured yellow when stderr is
// a terminal.
func DbgPrint(format string, args ...any) {
	message := fmt.Sprintf(format, args...)

	var buf bytes.Buffer
	colour := term.IsTerminal(int(os.Stderr.Fd()))
	for _, line := range strings.Split(message, "\n") {
		if colour {
			buf.WriteString("\x1b[33m* ")
			buf.WriteString(line)
			buf.WriteString("\x1b[0m\n")
		} else {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	_, _ = os.Stderr.Write(buf.Bytes())
}

var _ Debuger = &debuger{}
