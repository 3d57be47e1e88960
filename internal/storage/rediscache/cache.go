package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/epistimio/orion-go/internal/trial"
)

// PendingCache caches an experiment's pending-trial count for a short TTL,
// grounded on the same profile-switch idiom the teacher uses to optionally
// layer Redis in front of a primary store. It is read-through: a miss
// recomputes via the supplied loader and repopulates the cache.
type PendingCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewPendingCache returns a PendingCache. ttl should be well under the
// storage backend's heartbeat TTL so a stale count never survives a full
// sweep interval.
func NewPendingCache(client *redis.Client, prefix string, ttl time.Duration) *PendingCache {
	return &PendingCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *PendingCache) key(experimentID string) string {
	return fmt.Sprintf("%s:pending-count:%s", c.prefix, experimentID)
}

// Count returns the cached pending-trial count, calling loader on a cache
// miss and caching its result.
func (c *PendingCache) Count(ctx context.Context, experimentID string, loader func(context.Context) (int, error)) (int, error) {
	cached, err := c.client.Get(ctx, c.key(experimentID)).Result()
	if err == nil {
		var n int
		if jsonErr := json.Unmarshal([]byte(cached), &n); jsonErr == nil {
			return n, nil
		}
	}

	n, err := loader(ctx)
	if err != nil {
		return 0, err
	}
	encoded, err := json.Marshal(n)
	if err == nil {
		_ = c.client.Set(ctx, c.key(experimentID), encoded, c.ttl).Err()
	}
	return n, nil
}

// Invalidate drops the cached count for experimentID, so the next Count call
// recomputes it rather than serving the cached value until TTL.
func (c *PendingCache) Invalidate(ctx context.Context, experimentID string) error {
	return c.client.Del(ctx, c.key(experimentID)).Err()
}

// TrialSnapshot is a lightweight cached projection of a trial: its id and
// last-known status.
type TrialSnapshot struct {
	ID     string
	Status trial.Status
}

func (c *PendingCache) snapshotKey(trialID string) string {
	return fmt.Sprintf("%s:trial-snapshot:%s", c.prefix, trialID)
}

// PutSnapshot caches a trial's last-known status.
func (c *PendingCache) PutSnapshot(ctx context.Context, snap TrialSnapshot) error {
	encoded, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.snapshotKey(snap.ID), encoded, c.ttl).Err()
}

// GetSnapshot returns the cached snapshot for trialID, if present.
func (c *PendingCache) GetSnapshot(ctx context.Context, trialID string) (TrialSnapshot, bool, error) {
	cached, err := c.client.Get(ctx, c.snapshotKey(trialID)).Result()
	if err == redis.Nil {
		return TrialSnapshot{}, false, nil
	}
	if err != nil {
		return TrialSnapshot{}, false, err
	}
	var snap TrialSnapshot
	if err := json.Unmarshal([]byte(cached), &snap); err != nil {
		return TrialSnapshot{}, false, err
	}
	return snap, true, nil
}
