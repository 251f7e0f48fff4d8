package control

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/vietddude/autocycle/internal/core/domain"
)

func TestGracefulShutdown(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	cfg := testConfig(t, "memory")
	cfg.Subsystems = []domain.Subsystem{
		{Name: "metro", Command: []string{"sleep", "30"}, Dir: cfg.ProjectRoot, Critical: true},
	}
	cfg.Supervisor.StopTimeout = 2 * time.Second

	app := newApp(t, cfg, failOn())
	ctx, cancel := context.WithCancel(context.Background())

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snap := app.Supervisor().Snapshot()
	if len(snap) != 1 || snap[0].Status != domain.SubsystemRunning || snap[0].PID == 0 {
		t.Fatalf("expected running subsystem, got %+v", snap)
	}

	// Trigger shutdown
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	done := make(chan error, 1)
	go func() { done <- app.Stop(stopCtx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Stop did not return within 10s")
	}

	for _, s := range app.Supervisor().Snapshot() {
		if s.Status != domain.SubsystemStopped {
			t.Errorf("expected %s stopped, got %s", s.Name, s.Status)
		}
	}
}
