//go:build !unix

package exec

import (
	"os"
	"os/exec"
)

// SetProcessGroup is a no-op where process groups are unavailable.
func SetProcessGroup(cmd *exec.Cmd) {}

// SignalGroup signals p alone.
func SignalGroup(p *os.Process, sig os.Signal) error {
	if p == nil {
		return os.ErrProcessDone
	}
	return p.Signal(sig)
}
