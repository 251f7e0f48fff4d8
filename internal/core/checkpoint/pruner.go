package checkpoint

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/autocycle/internal/cycle/schedule"
	"github.com/vietddude/autocycle/internal/infra/storage"
)

// Pruner deletes old checkpoints, keeping only the newest keepLast.
type Pruner struct {
	repo     storage.CheckpointRepository
	keepLast int
	interval time.Duration
	sched    schedule.Scheduler
	logger   *slog.Logger
}

// NewPruner creates a new Pruner worker. A nil scheduler uses time.Ticker.
func NewPruner(
	repo storage.CheckpointRepository,
	keepLast int,
	interval time.Duration,
	scheduler schedule.Scheduler,
	logger *slog.Logger,
) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	if scheduler == nil {
		scheduler = schedule.Ticker{}
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Pruner{
		repo:     repo,
		keepLast: keepLast,
		interval: interval,
		sched:    scheduler,
		logger:   logger,
	}
}

// Start runs the pruner loop until ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.keepLast <= 0 {
		return // Retention disabled
	}

	ticks, stop := p.sched.Every(p.interval)
	defer stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			p.Prune(ctx)
		}
	}
}

// Prune removes everything older than the newest keepLast checkpoints.
func (p *Pruner) Prune(ctx context.Context) int {
	if p.keepLast <= 0 {
		return 0
	}
	cycles, err := p.repo.List(ctx)
	if err != nil {
		p.logger.Error("Failed to list checkpoints for pruning", "error", err)
		return 0
	}
	if len(cycles) <= p.keepLast {
		return 0
	}

	bound := cycles[len(cycles)-p.keepLast]
	n, err := p.repo.DeleteBefore(ctx, bound)
	if err != nil {
		p.logger.Error("Failed to prune checkpoints", "before", bound, "error", err)
		return 0
	}
	if n > 0 {
		p.logger.Info("Pruned checkpoints", "removed", n, "before", bound)
	}
	return n
}
