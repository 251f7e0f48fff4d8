package control

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/vietddude/autocycle/internal/core/config"
	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/cycle/runner"
)

type stubHost struct{}

func (stubHost) CPUPercent() (float64, error)         { return 1, nil }
func (stubHost) MemoryPercent() (float64, error)      { return 2, nil }
func (stubHost) DiskFree(path string) (uint64, error) { return 3, nil }

func testConfig(t *testing.T, backend string) *config.AppConfig {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.ProjectRoot = root
	cfg.Server.Port = 0
	cfg.Logging.Dir = filepath.Join(root, "logs")
	cfg.Checkpoint.Backend = backend
	cfg.Checkpoint.Dir = filepath.Join(root, "checkpoints")
	cfg.Cycles.Pause = 0
	cfg.Recovery.RetryDelay = time.Millisecond
	cfg.Recovery.HistoryFile = filepath.Join(root, "logs", "error_history.json")
	return cfg
}

// failOn fails the listed cycles with a build error.
func failOn(cycles ...int) runner.Work {
	return runner.WorkFunc(func(ctx context.Context, cycle int) error {
		if slices.Contains(cycles, cycle) {
			code := 1
			return &runner.WorkError{Message: "Build failed exit code 1", ExitCode: &code}
		}
		return nil
	})
}

func newApp(t *testing.T, cfg *config.AppConfig, work runner.Work) *Autocycle {
	t.Helper()
	app, err := NewAutocycle(context.Background(), cfg, Options{Work: work, Host: stubHost{}})
	if err != nil {
		t.Fatalf("NewAutocycle failed: %v", err)
	}
	return app
}

func TestAutocycle_ThreeCycles(t *testing.T) {
	cfg := testConfig(t, "memory")
	app := newApp(t, cfg, failOn(2))
	ctx := context.Background()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sum, err := app.Run(ctx, 3, false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Succeeded != 2 || sum.Failed != 1 {
		t.Errorf("expected 2 succeeded and 1 failed, got %+v", sum)
	}

	cycles, err := app.Checkpoints().List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !slices.Equal(cycles, []int{1, 2, 3}) {
		t.Errorf("expected checkpoints [1 2 3], got %v", cycles)
	}

	cp, err := app.Checkpoints().Get(ctx, 2)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cp.Succeeded() {
		t.Error("expected cycle 2 to be recorded as failed")
	}
	if cp.Data["error_kind"] != string(domain.ErrorKindBuildFailure) {
		t.Errorf("expected build_failure, got %v", cp.Data["error_kind"])
	}

	snap := app.Monitor().Sample(ctx)
	if snap.LatestCheckpoint == nil || snap.LatestCheckpoint.Cycle != 3 {
		t.Errorf("unexpected latest checkpoint: %+v", snap.LatestCheckpoint)
	}
	if snap.ErrorsByKind[domain.ErrorKindBuildFailure] != 1 {
		t.Errorf("expected one build error, got %v", snap.ErrorsByKind)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := os.Stat(cfg.Recovery.HistoryFile); err != nil {
		t.Errorf("expected error history file: %v", err)
	}
	// Second stop is a no-op
	if err := app.Stop(stopCtx); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestAutocycle_Resume(t *testing.T) {
	cfg := testConfig(t, "file")
	ctx := context.Background()

	first := newApp(t, cfg, failOn())
	if _, err := first.Run(ctx, 3, false); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if err := first.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	second := newApp(t, cfg, failOn())
	defer second.Stop(ctx)

	sum, err := second.Run(ctx, 5, true)
	if err != nil {
		t.Fatalf("resumed run failed: %v", err)
	}
	if sum.Start != 4 {
		t.Errorf("expected resume at cycle 4, got %d", sum.Start)
	}
	if sum.Completed() != 2 {
		t.Errorf("expected 2 cycles, got %d", sum.Completed())
	}
}

func TestAutocycle_Interrupted(t *testing.T) {
	cfg := testConfig(t, "memory")
	ctx, cancel := context.WithCancel(context.Background())

	work := runner.WorkFunc(func(ctx context.Context, cycle int) error {
		if cycle == 2 {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	app := newApp(t, cfg, work)
	defer app.Stop(context.Background())

	_, err := app.Run(ctx, 5, false)
	if !errors.Is(err, runner.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}

	cycles, _ := app.Checkpoints().List(context.Background())
	if !slices.Equal(cycles, []int{1}) {
		t.Errorf("expected only cycle 1 checkpointed, got %v", cycles)
	}
}

func TestNewAutocycle_RequiresWork(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Work.Command = ""

	if _, err := NewAutocycle(context.Background(), cfg, Options{}); err == nil {
		t.Fatal("expected error without a work command")
	}
}

func TestNewAutocycle_BadRecoveryConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.AppConfig)
	}{
		{"unknown budget kind", func(c *config.AppConfig) { c.Recovery.Budgets = map[string]int{"bogus": 1} }},
		{"negative budget", func(c *config.AppConfig) { c.Recovery.Budgets = map[string]int{"network_error": -1} }},
		{"unknown strategy", func(c *config.AppConfig) {
			c.Recovery.Strategies = map[string][]string{"build_failure": {"pray"}}
		}},
		{"bad pattern", func(c *config.AppConfig) { c.Recovery.Patterns = map[string][]string{"build_failure": {"("}} }},
		{"duplicate subsystem", func(c *config.AppConfig) {
			c.Subsystems = []domain.Subsystem{
				{Name: "metro", Command: []string{"true"}},
				{Name: "metro", Command: []string{"true"}},
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "memory")
			tt.mutate(cfg)
			if _, err := NewAutocycle(context.Background(), cfg, Options{Work: failOn(), Host: stubHost{}}); err == nil {
				t.Error("expected error")
			}
		})
	}
}
