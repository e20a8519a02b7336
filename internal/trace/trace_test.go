package trace

import (
	"io"
	"os"
	"strings"
	"testing"
)

func TestDebugerOnlyPrintsWhenVerbose(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stderr
	os.Stderr = w
	NewDebuger(false).DbgPrint("silent")
	NewDebuger(true).DbgPrint("loud %d", 1)
	os.Stderr = orig
	w.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "silent") {
		t.Errorf("non-verbose debuger printed: %q", out)
	}
	if !strings.Contains(string(out), "loud 1") {
		t.Errorf("verbose debuger printed nothing: %q", out)
	}
}
