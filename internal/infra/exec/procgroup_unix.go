//go:build unix

package exec

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// SetProcessGroup makes cmd the leader of a new process group so the whole
// tree it spawns can be signalled at once.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// SignalGroup sends sig to the process group led by p.
func SignalGroup(p *os.Process, sig os.Signal) error {
	if p == nil {
		return os.ErrProcessDone
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		return p.Signal(sig)
	}
	if err := unix.Kill(-p.Pid, s); err != nil {
		if err == unix.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}
	return nil
}
