//go:build linux || darwin

package media

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup starts ffmpeg in its own process group so Close can kill it with its children.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killProcessGroup kills a process and its children on Unix systems
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	// The process may already have exited
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
