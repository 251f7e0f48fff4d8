package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/infra/storage"
)

// checkpointRow mirrors the checkpoints table.
type checkpointRow struct {
	Cycle      int       `db:"cycle"`
	CreatedAt  time.Time `db:"created_at"`
	Payload    []byte    `db:"payload"`
	Subsystems []byte    `db:"subsystems"`
}

// CheckpointRepo implements storage.CheckpointRepository using PostgreSQL.
type CheckpointRepo struct {
	db *DB
}

// NewCheckpointRepo creates a new PostgreSQL checkpoint repository.
func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

// Save inserts the checkpoint. An existing row for the same cycle is overwritten so a
// crash between work and commit can be replayed.
func (r *CheckpointRepo) Save(ctx context.Context, cp *domain.Checkpoint) error {
	payload, err := json.Marshal(cp.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	subsystems, err := json.Marshal(cp.Subsystems)
	if err != nil {
		return fmt.Errorf("failed to marshal subsystems: %w", err)
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO checkpoints (cycle, created_at, payload, subsystems)
		VALUES (:cycle, :created_at, :payload, :subsystems)
		ON CONFLICT (cycle) DO UPDATE
		SET created_at = EXCLUDED.created_at,
		    payload = EXCLUDED.payload,
		    subsystems = EXCLUDED.subsystems`,
		checkpointRow{
			Cycle:      cp.Cycle,
			CreatedAt:  cp.Timestamp,
			Payload:    payload,
			Subsystems: subsystems,
		})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Get retrieves the checkpoint for a cycle.
func (r *CheckpointRepo) Get(ctx context.Context, cycle int) (*domain.Checkpoint, error) {
	var row checkpointRow
	err := r.db.GetContext(ctx, &row,
		`SELECT cycle, created_at, payload, subsystems FROM checkpoints WHERE cycle = $1`, cycle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return row.toDomain()
}

// LoadLatest retrieves the checkpoint with the highest cycle.
func (r *CheckpointRepo) LoadLatest(ctx context.Context) (*domain.Checkpoint, error) {
	var row checkpointRow
	err := r.db.GetContext(ctx, &row,
		`SELECT cycle, created_at, payload, subsystems FROM checkpoints ORDER BY cycle DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	return row.toDomain()
}

// List returns all cycle numbers, ascending.
func (r *CheckpointRepo) List(ctx context.Context) ([]int, error) {
	var cycles []int
	if err := r.db.SelectContext(ctx, &cycles, `SELECT cycle FROM checkpoints ORDER BY cycle`); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return cycles, nil
}

// DeleteBefore removes checkpoints older than cycle.
func (r *CheckpointRepo) DeleteBefore(ctx context.Context, cycle int) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE cycle < $1`, cycle)
	if err != nil {
		return 0, fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Clear removes every checkpoint.
func (r *CheckpointRepo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM checkpoints`); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}

func (row checkpointRow) toDomain() (*domain.Checkpoint, error) {
	cp := &domain.Checkpoint{
		Cycle:     row.Cycle,
		Timestamp: row.CreatedAt,
	}
	if err := json.Unmarshal(row.Payload, &cp.Data); err != nil {
		return nil, fmt.Errorf("failed to decode payload for cycle %d: %w", row.Cycle, err)
	}
	if err := json.Unmarshal(row.Subsystems, &cp.Subsystems); err != nil {
		return nil, fmt.Errorf("failed to decode subsystems for cycle %d: %w", row.Cycle, err)
	}
	return cp, nil
}
