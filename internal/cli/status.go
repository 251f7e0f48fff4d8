package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/autocycle/internal/control"
	"github.com/vietddude/autocycle/internal/infra/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest checkpoint and every persisted cycle",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
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

	if err := printStatus(ctx, os.Stdout, backend.Repo); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read checkpoints: %v\n", err)
		os.Exit(1)
	}
}

func printStatus(ctx context.Context, out io.Writer, repo storage.CheckpointRepository) error {
	latest, err := repo.LoadLatest(ctx)
	if err != nil {
		return err
	}
	if latest == nil {
		_, _ = fmt.Fprintln(out, "No checkpoints recorded")
		return nil
	}

	cycles, err := repo.List(ctx)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "Latest cycle: %d (%s, success=%t)\n",
		latest.Cycle, latest.Timestamp.Format(time.RFC3339), latest.Succeeded())
	_, _ = fmt.Fprintf(out, "Checkpoints: %d\n\n", len(cycles))

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CYCLE\tSUCCESS\tERROR\tTIMESTAMP")
	for _, n := range cycles {
		cp, err := repo.Get(ctx, n)
		if err != nil {
			_, _ = fmt.Fprintf(w, "%d\t?\t%v\t\n", n, err)
			continue
		}
		kind, _ := cp.Data["error_kind"].(string)
		_, _ = fmt.Fprintf(w, "%d\t%t\t%s\t%s\n", cp.Cycle, cp.Succeeded(), kind, cp.Timestamp.Format(time.RFC3339))
	}
	return w.Flush()
}
