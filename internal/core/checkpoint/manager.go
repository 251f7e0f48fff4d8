package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/cycle/metrics"
	"github.com/vietddude/autocycle/internal/infra/storage"
)

// ErrInvalidCycle is returned when a checkpoint carries a non-positive cycle.
var ErrInvalidCycle = errors.New("invalid cycle number")

// Loader is the read side the runner and monitor need.
type Loader interface {
	LoadLatest(ctx context.Context) (*domain.Checkpoint, error)
}

// Manager persists one checkpoint per cycle and tracks cycle timing.
type Manager struct {
	repo      storage.CheckpointRepository
	logger    *slog.Logger
	mu        sync.Mutex
	collector *MetricsCollector
	now       func() time.Time
}

// NewManager creates a checkpoint manager backed by repo.
func NewManager(repo storage.CheckpointRepository, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:      repo,
		logger:    logger,
		collector: NewMetricsCollector(100),
		now:       time.Now,
	}
}

// Record builds the checkpoint for a finished cycle and saves it.
func (m *Manager) Record(
	ctx context.Context,
	result domain.CycleResult,
	runID string,
	subsystems map[string]domain.SubsystemStatus,
) (*domain.Checkpoint, error) {
	cp := &domain.Checkpoint{
		Cycle:      result.Cycle,
		Timestamp:  m.now(),
		Data:       result.Payload(runID),
		Subsystems: subsystems,
	}
	if cp.Subsystems == nil {
		cp.Subsystems = map[string]domain.SubsystemStatus{}
	}

	m.mu.Lock()
	m.collector.RecordCycle(result)
	m.mu.Unlock()

	if err := m.Save(ctx, cp); err != nil {
		return cp, err
	}
	return cp, nil
}

// Save writes a checkpoint. Failures are returned, never retried here.
func (m *Manager) Save(ctx context.Context, cp *domain.Checkpoint) error {
	if cp.Cycle < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidCycle, cp.Cycle)
	}
	if err := m.repo.Save(ctx, cp); err != nil {
		metrics.CheckpointWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to save checkpoint %d: %w", cp.Cycle, err)
	}
	metrics.CheckpointWrites.WithLabelValues("ok").Inc()
	m.logger.Info("Checkpoint saved", "cycle", cp.Cycle, "success", cp.Succeeded())
	return nil
}

// LoadLatest returns the highest-numbered checkpoint, or nil when none exist.
func (m *Manager) LoadLatest(ctx context.Context) (*domain.Checkpoint, error) {
	cp, err := m.repo.LoadLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	return cp, nil
}

// Get returns the checkpoint for a cycle.
func (m *Manager) Get(ctx context.Context, cycle int) (*domain.Checkpoint, error) {
	return m.repo.Get(ctx, cycle)
}

// List returns stored cycle numbers in ascending order.
func (m *Manager) List(ctx context.Context) ([]int, error) {
	return m.repo.List(ctx)
}

// Clear removes every checkpoint.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.repo.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	m.mu.Lock()
	m.collector.Reset()
	m.mu.Unlock()
	m.logger.Warn("All checkpoints cleared")
	return nil
}

// GetMetrics returns cycle timing over the recent window.
func (m *Manager) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collector.GetMetrics()
}

// StartCycle returns the first cycle to run: latest+1 when resuming, else 1.
func StartCycle(ctx context.Context, loader Loader, resume bool) (int, error) {
	if !resume {
		return 1, nil
	}
	latest, err := loader.LoadLatest(ctx)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 1, nil
	}
	return latest.Cycle + 1, nil
}
