//go:build windows

package vcsexec

import "os/exec"

func setSysProcAttribute(c *exec.Cmd, _ bool) {
	// No process-group signalling support on Windows; the child is killed
	// via context cancellation instead.
}
