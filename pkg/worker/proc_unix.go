//go:build !windows

package worker

import (
	"os/exec"
	"syscall"
)

// configureProcess puts the worker in its own process group so a terminal
// signal aimed at the server does not reach it directly. Cancelling the
// context kills the whole group, including ffmpeg children.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay
}
