package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis connection used for checkpoint storage.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// Config holds Redis connection configuration.
type Config struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	Namespace string `yaml:"namespace"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "autocycle"
	}
	return &Client{rdb: rdb, namespace: namespace}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func indexKey(namespace string) string {
	return fmt.Sprintf("checkpoints:%s", namespace)
}

func checkpointKey(namespace string, cycle int) string {
	return fmt.Sprintf("checkpoint:%s:%d", namespace, cycle)
}

// ParseCheckpointKey extracts the cycle from "checkpoint:<namespace>:<cycle>".
func ParseCheckpointKey(key string) (int, error) {
	idx := strings.LastIndex(key, ":")
	if idx < 0 || !strings.HasPrefix(key, "checkpoint:") {
		return 0, fmt.Errorf("invalid checkpoint key: %s", key)
	}
	cycle, err := strconv.Atoi(key[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("invalid cycle in key %s: %w", key, err)
	}
	return cycle, nil
}
