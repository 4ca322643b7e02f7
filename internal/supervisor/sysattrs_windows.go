//go:build windows

package supervisor

import (
	"os"
	"os/exec"
)

func setSysProcAttr(_ *exec.Cmd) {}

// Windows has no process groups or graceful signals for arbitrary
// children; both paths go straight to Kill via the tracked handle.
func terminate(pid int) error { return killByPID(pid) }

func kill(pid int) error { return killByPID(pid) }

func killByPID(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}
