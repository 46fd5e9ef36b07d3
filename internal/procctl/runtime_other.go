//go:build !linux

package procctl

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func groupID(pid int) int { return pid }

func signalGroup(pgid int, sig os.Signal) error {
	proc, err := os.FindProcess(pgid)
	if err != nil {
		return nil
	}
	return proc.Signal(sig)
}
