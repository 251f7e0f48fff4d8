package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/autocycle/internal/core/config"
	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/infra/storage/memory"
)

func TestPrintStatus_Empty(t *testing.T) {
	repo := memory.NewCheckpointRepo(memory.NewMemoryStorage())

	var buf bytes.Buffer
	if err := printStatus(context.Background(), &buf, repo); err != nil {
		t.Fatalf("printStatus failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No checkpoints recorded") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestPrintStatus(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCheckpointRepo(memory.NewMemoryStorage())
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, ok := range []bool{true, false, true} {
		data := map[string]any{"success": ok}
		if !ok {
			data["error_kind"] = string(domain.ErrorKindBuildFailure)
		}
		cp := &domain.Checkpoint{Cycle: i + 1, Timestamp: ts, Data: data}
		if err := repo.Save(ctx, cp); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := printStatus(ctx, &buf, repo); err != nil {
		t.Fatalf("printStatus failed: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "Latest cycle: 3") {
		t.Errorf("expected latest cycle 3 in %q", out)
	}
	if !strings.Contains(out, "Checkpoints: 3") {
		t.Errorf("expected 3 checkpoints in %q", out)
	}
	if !strings.Contains(out, "build_failure") {
		t.Errorf("expected failed cycle kind in %q", out)
	}
}

func TestTargetCycles(t *testing.T) {
	cfg := config.Default()
	cfg.Cycles.Target = 40
	cfg.Cycles.TestCycles = 5

	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{}
		cmd.Flags().IntVar(&cycles, "cycles", 50, "")
		return cmd
	}
	defer func() { testMode = false }()

	cmd := newCmd()
	if got := targetCycles(cmd, cfg); got != 40 {
		t.Errorf("expected config target 40, got %d", got)
	}

	cmd = newCmd()
	_ = cmd.Flags().Set("cycles", "12")
	if got := targetCycles(cmd, cfg); got != 12 {
		t.Errorf("expected flag value 12, got %d", got)
	}

	testMode = true
	if got := targetCycles(cmd, cfg); got != 5 {
		t.Errorf("expected test cycles 5, got %d", got)
	}
}
