package redis

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestParseCheckpointKey(t *testing.T) {
	tests := []struct {
		key     string
		cycle   int
		wantErr bool
	}{
		{"checkpoint:autocycle:12", 12, false},
		{checkpointKey("squash", 7), 7, false},
		{"checkpoint:autocycle:abc", 0, true},
		{"checkpoints:autocycle", 0, true},
		{"garbage", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cycle, err := ParseCheckpointKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCheckpointKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if cycle != tt.cycle {
				t.Errorf("ParseCheckpointKey(%q) = %d, want %d", tt.key, cycle, tt.cycle)
			}
		})
	}
}

func TestKeysAreNamespaced(t *testing.T) {
	if got := indexKey("a"); got != "checkpoints:a" {
		t.Errorf("indexKey = %s", got)
	}
	if got := checkpointKey("a", 3); got != "checkpoint:a:3" {
		t.Errorf("checkpointKey = %s", got)
	}
}

func TestNewCheckpointRepo_UsesGivenLogger(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	client := &Client{rdb: rdb, namespace: "test"}

	var out bytes.Buffer
	repo := NewCheckpointRepo(client, slog.New(slog.NewTextHandler(&out, nil)))
	repo.logger.Warn("Skipping unparseable checkpoint key", "key", "checkpoint:test:x")

	if !strings.Contains(out.String(), "component=redis-checkpoints") {
		t.Errorf("Expected the injected logger to receive the record, got %q", out.String())
	}

	if NewCheckpointRepo(client, nil).logger == nil {
		t.Error("Expected a default logger when none is given")
	}
}
