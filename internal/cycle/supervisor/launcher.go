package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/vietddude/autocycle/internal/core/domain"
	procexec "github.com/vietddude/autocycle/internal/infra/exec"
)

// Process is a handle on a launched subsystem.
type Process interface {
	PID() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// ExitCode is valid after Done is closed; -1 when killed by a signal.
	ExitCode() int
	Signal(sig os.Signal) error
	Kill() error
}

// Launcher starts subsystem processes.
type Launcher interface {
	Launch(ctx context.Context, spec domain.Subsystem) (Process, error)
}

// ExecLauncher starts subsystems with os/exec. When OutputDir is set, each
// subsystem's stdout and stderr are appended to <OutputDir>/<name>.out.
type ExecLauncher struct {
	OutputDir string
}

// Launch starts spec.Command in spec.Dir as the leader of its own process
// group. The process is not tied to ctx; its lifetime is managed by the
// supervisor.
func (l *ExecLauncher) Launch(ctx context.Context, spec domain.Subsystem) (Process, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("subsystem %s has no command", spec.Name)
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	procexec.SetProcessGroup(cmd)

	var out *os.File
	if l.OutputDir != "" {
		if err := os.MkdirAll(l.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(l.OutputDir, spec.Name+".out"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open output file: %w", err)
		}
		cmd.Stdout, cmd.Stderr = f, f
		out = f
	}

	if err := cmd.Start(); err != nil {
		if out != nil {
			out.Close()
		}
		return nil, fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go p.wait(out)
	return p, nil
}

// execProcess wraps a started exec.Cmd. wait is the sole caller of cmd.Wait.
// Signals go to the whole process group.
type execProcess struct {
	cmd      *exec.Cmd
	done     chan struct{}
	mu       sync.Mutex
	exitCode int
}

func (p *execProcess) wait(out *os.File) {
	_ = p.cmd.Wait()
	// Whatever the leader left behind in its group goes with it.
	_ = procexec.SignalGroup(p.cmd.Process, os.Kill)
	if out != nil {
		out.Close()
	}
	p.mu.Lock()
	p.exitCode = p.cmd.ProcessState.ExitCode()
	p.mu.Unlock()
	close(p.done)
}

func (p *execProcess) PID() int              { return p.cmd.Process.Pid }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *execProcess) Signal(sig os.Signal) error {
	return procexec.SignalGroup(p.cmd.Process, sig)
}

func (p *execProcess) Kill() error {
	return procexec.SignalGroup(p.cmd.Process, os.Kill)
}
