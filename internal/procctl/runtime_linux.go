//go:build linux

package procctl

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup makes the spawned process the leader of its own process
// group, so that children it forks can be signalled together.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func groupID(pid int) int {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return pid
	}
	return pgid
}

func signalGroup(pgid int, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		s = unix.SIGKILL
	}

	// Negative PID addresses the whole group. ESRCH means the group is
	// already reaped, which is fine.
	if err := unix.Kill(-pgid, s); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}
