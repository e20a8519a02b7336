// Package errs defines the single error type this tool uses to surface
// fatal, user-visible conditions: invalid revisions, subprocess failures,
// malformed VCS output, and unreconcilable amendments.
package errs

import (
	"fmt"
	"strings"
)

// Fatal is a fatal, user-visible error. It carries an optional extended
// diagnostic block (child stderr, or a parser context window) and the
// process return code the CLI should exit with.
type Fatal struct {
	Message    string
	Extended   string
	ReturnCode int
}

// New returns a Fatal with return code 1 and no extended diagnostic.
func New(format string, args ...any) *Fatal {
	return &Fatal{Message: fmt.Sprintf(format, args...), ReturnCode: 1}
}

// Wrap builds a Fatal from a lower-level error, preserving no return code
// information beyond the default of 1.
func Wrap(err error, format string, args ...any) *Fatal {
	return &Fatal{
		Message:    fmt.Sprintf(format, args...) + ": " + err.Error(),
		ReturnCode: 1,
	}
}

func (f *Fatal) Error() string {
	return f.Message
}

// WithExtended attaches an extended diagnostic block and returns the
// receiver for chaining at the construction site.
func (f *Fatal) WithExtended(extended string) *Fatal {
	f.Extended = extended
	return f
}

// WithReturnCode overrides the default return code, used when a Fatal is
// surfacing the VCS child's own exit status.
func (f *Fatal) WithReturnCode(code int) *Fatal {
	f.ReturnCode = code
	return f
}

// ContextWindow renders up to numBefore lines before and numAfter lines
// after a 0-indexed offending line (marked "> "), clipped to the bounds of
// lines, for parser diagnostics. lines should not include trailing
// newlines.
func ContextWindow(lines [][]byte, offending int, numBefore, numAfter int) string {
	lo := offending - numBefore
	if lo < 0 {
		lo = 0
	}
	hi := offending + numAfter
	if hi >= len(lines) {
		hi = len(lines) - 1
	}

	width := len(fmt.Sprintf("%d", hi+1))
	var b strings.Builder
	for i := lo; i <= hi; i++ {
		marker := "  "
		if i == offending {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%*d| %s\n", marker, width, i+1, lines[i])
	}
	return strings.TrimSuffix(b.String(), "\n")
}
