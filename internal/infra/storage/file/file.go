// Package file stores checkpoints as one JSON document per cycle, named
// checkpoint_<cycle>.json, inside a single directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/infra/storage"
)

const (
	filePrefix = "checkpoint_"
	fileSuffix = ".json"
)

// CheckpointRepo implements storage.CheckpointRepository on the local filesystem.
type CheckpointRepo struct {
	dir string
}

// NewCheckpointRepo creates the directory if needed and returns a repository rooted there.
func NewCheckpointRepo(dir string) (*CheckpointRepo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	return &CheckpointRepo{dir: dir}, nil
}

// FileName returns the record name for a cycle.
func FileName(cycle int) string {
	return fmt.Sprintf("%s%d%s", filePrefix, cycle, fileSuffix)
}

// ParseFileName extracts the cycle number from a record name. Only the
// canonical form written by Save is accepted, so every listed cycle can be
// read back by number.
func ParseFileName(name string) (int, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	cycle, err := strconv.Atoi(raw)
	if err != nil || cycle < 1 || strconv.Itoa(cycle) != raw {
		return 0, false
	}
	return cycle, true
}

// Save writes the checkpoint through a temp file and rename so readers never see a partial record.
func (r *CheckpointRepo) Save(ctx context.Context, cp *domain.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(r.dir, FileName(cp.Cycle))); err != nil {
		return fmt.Errorf("failed to commit checkpoint %d: %w", cp.Cycle, err)
	}
	return nil
}

// Get reads the checkpoint for one cycle.
func (r *CheckpointRepo) Get(ctx context.Context, cycle int) (*domain.Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, FileName(cycle)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %d: %w", cycle, err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %d: %w", cycle, err)
	}
	return &cp, nil
}

// LoadLatest scans the directory once and loads the record with the highest cycle.
func (r *CheckpointRepo) LoadLatest(ctx context.Context) (*domain.Checkpoint, error) {
	cycles, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, nil
	}
	return r.Get(ctx, cycles[len(cycles)-1])
}

// List returns every parseable cycle number, ascending. Unparseable names are skipped.
func (r *CheckpointRepo) List(ctx context.Context) ([]int, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	cycles := make([]int, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if cycle, ok := ParseFileName(e.Name()); ok {
			cycles = append(cycles, cycle)
		}
	}
	slices.Sort(cycles)
	return cycles, nil
}

// DeleteBefore removes records older than cycle.
func (r *CheckpointRepo) DeleteBefore(ctx context.Context, cycle int) (int, error) {
	cycles, err := r.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, c := range cycles {
		if c >= cycle {
			break
		}
		if err := os.Remove(filepath.Join(r.dir, FileName(c))); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove checkpoint %d: %w", c, err)
		}
		removed++
	}
	return removed, nil
}

// Clear removes every checkpoint record, leaving other files in the directory alone.
func (r *CheckpointRepo) Clear(ctx context.Context) error {
	cycles, err := r.List(ctx)
	if err != nil {
		return err
	}
	for _, c := range cycles {
		if err := os.Remove(filepath.Join(r.dir, FileName(c))); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove checkpoint %d: %w", c, err)
		}
	}
	return nil
}
