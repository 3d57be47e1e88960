package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epistimio/orion-go/internal/trial"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestSweepLockMutualExclusion(t *testing.T) {
	client := newTestClient(t)
	lock := New(client, "orion-test")
	ctx := context.Background()

	ok1, err := lock.TryAcquire(ctx, "exp1", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok1)

	ok2, err := lock.TryAcquire(ctx, "exp1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok2, "a second worker must not acquire an already-held lock")
}

func TestSweepLockReleaseOnlyByOwner(t *testing.T) {
	client := newTestClient(t)
	lock := New(client, "orion-test")
	ctx := context.Background()

	ok, err := lock.TryAcquire(ctx, "exp1", "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Release(ctx, "exp1", "worker-b"))
	ok2, err := lock.TryAcquire(ctx, "exp1", "worker-c", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok2, "release by a non-owner must be a no-op")

	require.NoError(t, lock.Release(ctx, "exp1", "worker-a"))
	ok3, err := lock.TryAcquire(ctx, "exp1", "worker-c", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok3, "release by the true owner must free the lock")
}

func TestPendingCacheReadThrough(t *testing.T) {
	client := newTestClient(t)
	cache := NewPendingCache(client, "orion-test", time.Minute)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (int, error) {
		calls++
		return 7, nil
	}

	n, err := cache.Count(ctx, "exp1", loader)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 1, calls)

	n2, err := cache.Count(ctx, "exp1", loader)
	require.NoError(t, err)
	assert.Equal(t, 7, n2)
	assert.Equal(t, 1, calls, "second call should be served from cache")

	require.NoError(t, cache.Invalidate(ctx, "exp1"))
	_, err = cache.Count(ctx, "exp1", loader)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "invalidated entry should recompute")
}

func TestPendingCacheSnapshot(t *testing.T) {
	client := newTestClient(t)
	cache := NewPendingCache(client, "orion-test", time.Minute)
	ctx := context.Background()

	_, ok, err := cache.GetSnapshot(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.PutSnapshot(ctx, TrialSnapshot{ID: "t1", Status: trial.StatusReserved}))

	snap, ok, err := cache.GetSnapshot(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, trial.StatusReserved, snap.Status)
}
