package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/autocycle/internal/control"
)

var resetCheckpointsCmd = &cobra.Command{
	Use:   "reset-checkpoints",
	Short: "Delete every checkpoint so the next run starts at cycle 1",
	Args:  cobra.NoArgs,
	Run:   runResetCheckpoints,
}

func init() {
	rootCmd.AddCommand(resetCheckpointsCmd)
}

func runResetCheckpoints(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		os.Exit(1)
	}

	ctx := context.Background()
	backend, err := control.OpenCheckpoints(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open checkpoint storage: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = backend.Close()
	}()

	cycles, err := backend.Repo.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list checkpoints: %v\n", err)
		os.Exit(1)
	}
	if err := backend.Repo.Clear(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reset checkpoints: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Removed %d checkpoints from %s storage\n", len(cycles), cfg.Checkpoint.Backend)
}
