package command

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfirmAcceptsLowerAndUpperY(t *testing.T) {
	var out bytes.Buffer
	ok, err := confirm(strings.NewReader("y\n"), &out, "proceed? [y/N] ")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, out.String(), "proceed?")

	ok, err = confirm(strings.NewReader("Y\n"), &out, "proceed? [y/N] ")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConfirmDeclinesOnAnythingElse(t *testing.T) {
	var out bytes.Buffer
	ok, err := confirm(strings.NewReader("n\n"), &out, "proceed? [y/N] ")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = confirm(strings.NewReader("\n"), &out, "proceed? [y/N] ")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = confirm(strings.NewReader("Yes\n"), &out, "proceed? [y/N] ")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConfirmTreatsEOFAsDecline(t *testing.T) {
	var out bytes.Buffer
	ok, err := confirm(strings.NewReader(""), &out, "proceed? [y/N] ")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGlobalsDbgPrintSilentWhenNotVerbose(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stderr
	os.Stderr = w
	g := &Globals{Verbose: false}
	g.DbgPrint("should not panic %d", 1)
	os.Stderr = orig
	require.NoError(t, w.Close())

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Empty(t, out)
}
