package memory

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/infra/storage"
)

func TestCheckpointRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckpointRepo(NewMemoryStorage())

	if cp, err := repo.LoadLatest(ctx); err != nil || cp != nil {
		t.Fatalf("expected nil, nil on empty store, got %v, %v", cp, err)
	}

	for _, n := range []int{3, 10, 1} {
		if err := repo.Save(ctx, &domain.Checkpoint{Cycle: n, Data: map[string]any{"success": true}}); err != nil {
			t.Fatalf("Save(%d) failed: %v", n, err)
		}
	}

	latest, err := repo.LoadLatest(ctx)
	if err != nil || latest.Cycle != 10 {
		t.Fatalf("expected latest 10, got %v, %v", latest, err)
	}

	// Returned records are copies
	latest.Data["success"] = false
	again, _ := repo.Get(ctx, 10)
	if !again.Succeeded() {
		t.Error("mutation of a returned record leaked into the store")
	}

	cycles, _ := repo.List(ctx)
	if !slices.Equal(cycles, []int{1, 3, 10}) {
		t.Errorf("expected [1 3 10], got %v", cycles)
	}

	removed, _ := repo.DeleteBefore(ctx, 5)
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	if _, err := repo.Get(ctx, 1); !errors.Is(err, storage.ErrCheckpointNotFound) {
		t.Errorf("expected ErrCheckpointNotFound, got %v", err)
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if cycles, _ := repo.List(ctx); len(cycles) != 0 {
		t.Errorf("expected empty store, got %v", cycles)
	}
}
