package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/infra/storage"
)

type MemoryStorage struct {
	checkpoints map[int]*domain.Checkpoint
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		checkpoints: make(map[int]*domain.Checkpoint),
	}
}

// -----------------------------------------------------------------------------
// Checkpoint Repository
// -----------------------------------------------------------------------------

type CheckpointRepo struct {
	store *MemoryStorage
}

func NewCheckpointRepo(store *MemoryStorage) *CheckpointRepo {
	return &CheckpointRepo{store: store}
}

func (r *CheckpointRepo) Save(ctx context.Context, cp *domain.Checkpoint) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.checkpoints[cp.Cycle] = clone(cp)
	return nil
}

func (r *CheckpointRepo) Get(ctx context.Context, cycle int) (*domain.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cp, ok := r.store.checkpoints[cycle]
	if !ok {
		return nil, storage.ErrCheckpointNotFound
	}
	return clone(cp), nil
}

func (r *CheckpointRepo) LoadLatest(ctx context.Context) (*domain.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var latest *domain.Checkpoint
	for cycle, cp := range r.store.checkpoints {
		if latest == nil || cycle > latest.Cycle {
			latest = cp
		}
	}
	if latest == nil {
		return nil, nil
	}
	return clone(latest), nil
}

func (r *CheckpointRepo) List(ctx context.Context) ([]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.store.checkpoints)), nil
}

func (r *CheckpointRepo) DeleteBefore(ctx context.Context, cycle int) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	removed := 0
	for c := range r.store.checkpoints {
		if c < cycle {
			delete(r.store.checkpoints, c)
			removed++
		}
	}
	return removed, nil
}

func (r *CheckpointRepo) Clear(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	clear(r.store.checkpoints)
	return nil
}

// clone copies the top-level maps so callers can't mutate stored records.
func clone(cp *domain.Checkpoint) *domain.Checkpoint {
	c := *cp
	c.Data = maps.Clone(cp.Data)
	c.Subsystems = maps.Clone(cp.Subsystems)
	return &c
}
