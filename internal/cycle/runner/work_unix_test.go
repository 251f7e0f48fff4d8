//go:build unix

package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/autocycle/internal/infra/exec"
)

func TestCommandWork_DeadlineStopsBackgroundChildren(t *testing.T) {
	w := NewCommandWork(CommandWorkConfig{Command: "sleep 3 & wait"}, exec.NewRealExecutor(), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := w.Do(ctx, 1)
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Do returned after %s, expected it to stop at the deadline", elapsed)
	}
}
