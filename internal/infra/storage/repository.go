package storage

import (
	"context"
	"errors"

	"github.com/vietddude/autocycle/internal/core/domain"
)

var (
	// ErrCheckpointNotFound is returned when a specific cycle has no record.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// CheckpointRepository persists one immutable record per cycle.
type CheckpointRepository interface {
	// Save writes the checkpoint for cp.Cycle. Failures are returned, not retried.
	Save(ctx context.Context, cp *domain.Checkpoint) error

	// Get retrieves the checkpoint for a single cycle
	Get(ctx context.Context, cycle int) (*domain.Checkpoint, error)

	// LoadLatest returns the checkpoint with the highest cycle number, or nil if none exist.
	LoadLatest(ctx context.Context) (*domain.Checkpoint, error)

	// List returns the persisted cycle numbers in ascending order.
	List(ctx context.Context) ([]int, error)

	// DeleteBefore removes checkpoints with cycle < cycle and returns how many were removed.
	DeleteBefore(ctx context.Context, cycle int) (int, error)

	// Clear removes every checkpoint.
	Clear(ctx context.Context) error
}
