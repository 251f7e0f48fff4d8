package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/autocycle/internal/core/domain"
	"github.com/vietddude/autocycle/internal/infra/storage"
)

// CheckpointRepo implements storage.CheckpointRepository using Redis.
// Each record is a JSON string; a sorted set scored by cycle indexes them.
type CheckpointRepo struct {
	rdb       *redis.Client
	namespace string
	logger    *slog.Logger
}

// NewCheckpointRepo creates a new Redis-backed checkpoint repository.
func NewCheckpointRepo(client *Client, logger *slog.Logger) *CheckpointRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckpointRepo{
		rdb:       client.rdb,
		namespace: client.namespace,
		logger:    logger.With("component", "redis-checkpoints"),
	}
}

// Save stores the record and indexes it.
func (r *CheckpointRepo) Save(ctx context.Context, cp *domain.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	key := checkpointKey(r.namespace, cp.Cycle)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.ZAdd(ctx, indexKey(r.namespace), redis.Z{Score: float64(cp.Cycle), Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %d: %w", cp.Cycle, err)
	}
	return nil
}

// Get retrieves the checkpoint for a cycle.
func (r *CheckpointRepo) Get(ctx context.Context, cycle int) (*domain.Checkpoint, error) {
	data, err := r.rdb.Get(ctx, checkpointKey(r.namespace, cycle)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// LoadLatest walks the index from the highest score down, skipping members
// whose key doesn't parse or whose data has expired.
func (r *CheckpointRepo) LoadLatest(ctx context.Context) (*domain.Checkpoint, error) {
	members, err := r.rdb.ZRevRange(ctx, indexKey(r.namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}

	for _, member := range members {
		cycle, err := ParseCheckpointKey(member)
		if err != nil {
			r.logger.Warn("Skipping unparseable checkpoint key", "key", member, "error", err)
			continue
		}
		cp, err := r.Get(ctx, cycle)
		if err == storage.ErrCheckpointNotFound {
			// Data removed but still indexed
			r.rdb.ZRem(ctx, indexKey(r.namespace), member)
			continue
		}
		if err != nil {
			return nil, err
		}
		return cp, nil
	}
	return nil, nil
}

// List returns indexed cycles, ascending.
func (r *CheckpointRepo) List(ctx context.Context) ([]int, error) {
	members, err := r.rdb.ZRange(ctx, indexKey(r.namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	cycles := make([]int, 0, len(members))
	for _, member := range members {
		if cycle, err := ParseCheckpointKey(member); err == nil {
			cycles = append(cycles, cycle)
		}
	}
	return cycles, nil
}

// DeleteBefore removes records with cycle below the bound.
func (r *CheckpointRepo) DeleteBefore(ctx context.Context, cycle int) (int, error) {
	members, err := r.rdb.ZRangeByScore(ctx, indexKey(r.namespace), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.Itoa(cycle),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, members...)
		zmembers := make([]any, len(members))
		for i, m := range members {
			zmembers[i] = m
		}
		pipe.ZRem(ctx, indexKey(r.namespace), zmembers...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune checkpoints: %w", err)
	}
	return len(members), nil
}

// Clear removes every record and the index.
func (r *CheckpointRepo) Clear(ctx context.Context) error {
	members, err := r.rdb.ZRange(ctx, indexKey(r.namespace), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("zrange failed: %w", err)
	}
	keys := append(members, indexKey(r.namespace))
	return r.rdb.Del(ctx, keys...).Err()
}
