// Package rediscache provides an optional distributed coordination layer
// over github.com/redis/go-redis/v9: a short-lived lock that keeps multiple
// worker processes from running the heartbeat sweep for the same experiment
// concurrently. It is not required for correctness — every storage.Backend
// already performs sweep under its own CAS discipline. No storage backend
// or worker acquires it; it is exercised only by this package's tests.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SweepLock coordinates heartbeat-sweep ownership across worker processes
// sharing one experiment via a Redis SET NX EX lock.
type SweepLock struct {
	client *redis.Client
	prefix string
}

// New returns a SweepLock using client. prefix namespaces keys (e.g. the
// deployment name) so multiple Orion deployments can share one Redis.
func New(client *redis.Client, prefix string) *SweepLock {
	return &SweepLock{client: client, prefix: prefix}
}

func (l *SweepLock) key(experimentID string) string {
	return fmt.Sprintf("%s:sweep-lock:%s", l.prefix, experimentID)
}

// TryAcquire attempts to become the sweep owner for experimentID for ttl.
// Returns true if the caller now holds the lock. A held lock is released
// either by calling Release or by ttl expiry, whichever comes first — a
// worker that crashes mid-sweep never leaves the experiment permanently
// unswept.
func (l *SweepLock) TryAcquire(ctx context.Context, experimentID, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(experimentID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("rediscache: acquire sweep lock: %w", err)
	}
	return ok, nil
}

// Release drops the lock for experimentID, but only if owner still holds
// it — a watchdog-expired lock that another worker has since re-acquired
// must not be released out from under them.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *SweepLock) Release(ctx context.Context, experimentID, owner string) error {
	err := releaseScript.Run(ctx, l.client, []string{l.key(experimentID)}, owner).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("rediscache: release sweep lock: %w", err)
	}
	return nil
}
