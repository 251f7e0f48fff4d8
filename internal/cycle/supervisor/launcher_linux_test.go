//go:build linux

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/procfs"

	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/cycle/schedule"
)

// readPID waits for the shell to write its background child's PID.
func readPID(t *testing.T, path string) int {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
				return pid
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no pid written to %s", path)
	return 0
}

// alive reports whether pid is a live, non-zombie process.
func alive(pid int) bool {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return false
	}
	stat, err := p.Stat()
	if err != nil {
		return false
	}
	return stat.State != "Z" && stat.State != "X"
}

func waitGone(t *testing.T, pid int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("process %d still running", pid)
}

func TestStop_KillsWholeProcessTree(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "child.pid")

	// TERM is ignored by the shell and inherited by its child, so only the
	// forced kill can end them.
	spec := domain.Subsystem{
		Name:     "metro",
		Command:  []string{"sh", "-c", `trap "" TERM; sleep 30 & echo $! > ` + pidFile + `; wait`},
		Dir:      dir,
		Critical: true,
	}
	s, err := New(Config{StopTimeout: 500 * time.Millisecond}, []domain.Subsystem{spec}, &ExecLauncher{}, schedule.NewManual(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	child := readPID(t, pidFile)
	if !alive(child) {
		t.Fatalf("background child %d not running", child)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	waitGone(t, child)
}

func TestExecLauncher_LeaderExitTakesChildren(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "child.pid")

	l := &ExecLauncher{OutputDir: dir}
	proc, err := l.Launch(context.Background(), domain.Subsystem{
		Name:    "logcat",
		Command: []string{"sh", "-c", `sleep 30 & echo $! > ` + pidFile + `; sleep 0.2; exit 1`},
		Dir:     dir,
	})
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	child := readPID(t, pidFile)

	select {
	case <-proc.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("leader did not exit")
	}
	if code := proc.ExitCode(); code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}

	waitGone(t, child)
}
