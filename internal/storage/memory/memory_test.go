package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epistimio/orion-go/internal/storage"
	"github.com/epistimio/orion-go/internal/trial"
)

func newTrial(id, expID string) *trial.Trial {
	return &trial.Trial{ID: id, ExperimentID: expID, Status: trial.StatusNew}
}

func TestConcurrentReservationDistinctTrials(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	const n = 8
	for i := 0; i < n; i++ {
		_, err := s.RegisterTrial(ctx, newTrial(string(rune('a'+i)), "exp"))
		require.NoError(t, err)
	}

	results := make([]*trial.Trial, n+4)
	var wg sync.WaitGroup
	for i := 0; i < n+4; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr, err := s.ReserveTrial(ctx, "exp", storage.DefaultHeartbeatTTL)
			require.NoError(t, err)
			results[i] = tr
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	nilCount := 0
	for _, tr := range results {
		if tr == nil {
			nilCount++
			continue
		}
		assert.False(t, seen[tr.ID], "trial %s reserved twice", tr.ID)
		seen[tr.ID] = true
		assert.Equal(t, trial.StatusReserved, tr.Status)
	}
	assert.Len(t, seen, n)
	assert.Equal(t, 4, nilCount)
}

func TestHeartbeatRecovery(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	_, err := s.RegisterTrial(ctx, newTrial("t1", "exp"))
	require.NoError(t, err)

	tr, err := s.ReserveTrial(ctx, "exp", time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, tr)

	time.Sleep(5 * time.Millisecond)

	tr2, err := s.ReserveTrial(ctx, "exp", time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, tr2, "heartbeat-expired trial must become reservable again")
	assert.Equal(t, "t1", tr2.ID)
}

func TestDuplicateTrialRegistration(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	_, err := s.RegisterTrial(ctx, newTrial("t1", "exp"))
	require.NoError(t, err)
	_, err = s.RegisterTrial(ctx, newTrial("t1", "exp"))
	assert.Error(t, err)
	var dupErr *storage.ErrDuplicateKey
	assert.ErrorAs(t, err, &dupErr)
}

func TestCompletedCountMonotonic(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	_, err := s.RegisterTrial(ctx, newTrial("t1", "exp"))
	require.NoError(t, err)

	before, _ := s.CountCompletedTrials(ctx, "exp")
	tr, _ := s.ReserveTrial(ctx, "exp", storage.DefaultHeartbeatTTL)
	_, err = s.SetTrialStatus(ctx, tr.ID, trial.StatusReserved, trial.StatusCompleted, nil)
	require.NoError(t, err)
	after, _ := s.CountCompletedTrials(ctx, "exp")
	assert.GreaterOrEqual(t, after, before)
}
