//go:build !windows && !linux

package vcsexec

import (
	"os/exec"
	"syscall"
)

func setSysProcAttribute(c *exec.Cmd, _ bool) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
