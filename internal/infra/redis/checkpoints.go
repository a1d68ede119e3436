package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

const checkpointIndexKey = "conductor:checkpoints"

func checkpointKey(id string) string {
	return fmt.Sprintf("conductor:checkpoint:%s", id)
}

// CheckpointMirror persists checkpoints so a restarted process can preload
// its ring buffer. It implements checkpoint.Mirror.
type CheckpointMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCheckpointMirror(client *Client, ttl time.Duration) *CheckpointMirror {
	if ttl <= 0 {
		ttl = DefaultConfig().CheckpointTTL
	}
	return &CheckpointMirror{rdb: client.rdb, ttl: ttl}
}

// Save stores the checkpoint as JSON and indexes it by timestamp.
func (m *CheckpointMirror) Save(ctx context.Context, cp *domain.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, checkpointKey(cp.ID), data, m.ttl)
	pipe.ZAdd(ctx, checkpointIndexKey, redis.Z{
		Score:  float64(cp.Timestamp.UnixNano()),
		Member: cp.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint and its index entry.
func (m *CheckpointMirror) Delete(ctx context.Context, id string) error {
	pipe := m.rdb.TxPipeline()
	pipe.Del(ctx, checkpointKey(id))
	pipe.ZRem(ctx, checkpointIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// LoadRecent returns up to n of the newest mirrored checkpoints, oldest
// first. Index entries whose data expired are dropped.
func (m *CheckpointMirror) LoadRecent(ctx context.Context, n int) ([]*domain.Checkpoint, error) {
	if n <= 0 {
		return nil, nil
	}

	ids, err := m.rdb.ZRevRange(ctx, checkpointIndexKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}

	out := make([]*domain.Checkpoint, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		data, err := m.rdb.Get(ctx, checkpointKey(id)).Bytes()
		if err == redis.Nil {
			// Data expired but ID still indexed
			m.rdb.ZRem(ctx, checkpointIndexKey, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get checkpoint: %w", err)
		}

		var cp domain.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", id, err)
		}
		out = append(out, &cp)
	}
	return out, nil
}
