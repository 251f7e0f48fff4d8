package control

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vietddude/autocycle/internal/core/config"
	redisclient "github.com/vietddude/autocycle/internal/infra/redis"
	"github.com/vietddude/autocycle/internal/infra/storage"
	"github.com/vietddude/autocycle/internal/infra/storage/file"
	"github.com/vietddude/autocycle/internal/infra/storage/memory"
	"github.com/vietddude/autocycle/internal/infra/storage/postgres"
)

// Backend is an opened checkpoint store and whatever connection backs it.
type Backend struct {
	Repo  storage.CheckpointRepository
	DB    *postgres.DB
	Redis *redisclient.Client
}

// Close releases the backing connection, if any.
func (b *Backend) Close() error {
	var c io.Closer
	switch {
	case b.DB != nil:
		c = b.DB
	case b.Redis != nil:
		c = b.Redis
	default:
		return nil
	}
	return c.Close()
}

// OpenCheckpoints opens the checkpoint backend selected in config. The
// postgres backend applies its migrations before returning.
func OpenCheckpoints(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Backend, error) {
	switch cfg.Checkpoint.Backend {
	case "", "file":
		repo, err := file.NewCheckpointRepo(cfg.Checkpoint.Dir)
		if err != nil {
			return nil, err
		}
		return &Backend{Repo: repo}, nil

	case "memory":
		return &Backend{Repo: memory.NewCheckpointRepo(memory.NewMemoryStorage())}, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Backend{Repo: postgres.NewCheckpointRepo(db), DB: db}, nil

	case "redis":
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return &Backend{Repo: redisclient.NewCheckpointRepo(client, logger), Redis: client}, nil

	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}
}
