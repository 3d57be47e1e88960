package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/storage"
	"github.com/epistimio/orion-go/internal/trial"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orion.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func newTrial(id, expID string) *trial.Trial {
	return &trial.Trial{ID: id, ExperimentID: expID, Status: trial.StatusNew}
}

func TestSQLiteCreateExperimentDuplicate(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	cfg := storage.ExperimentConfig{ID: "e1", Name: "exp", Version: 1, User: "bob"}
	_, err := s.CreateExperiment(ctx, cfg)
	require.NoError(t, err)

	_, err = s.CreateExperiment(ctx, storage.ExperimentConfig{ID: "e2", Name: "exp", Version: 1, User: "bob"})
	require.Error(t, err)
	var dupErr *storage.ErrDuplicateKey
	assert.ErrorAs(t, err, &dupErr)
}

func TestSQLiteRegisterAndFetchTrial(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	tr := newTrial("t1", "exp")
	tr.Params = []space.Param{{Name: "lr", Value: space.Value{Kind: space.KindReal, F: 0.1}}}
	_, err := s.RegisterTrial(ctx, tr)
	require.NoError(t, err)

	got, err := s.GetTrial(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, trial.StatusNew, got.Status)
	assert.Len(t, got.Params, 1)
}

func TestSQLiteConcurrentReservationDistinctTrials(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	const n = 6
	for i := 0; i < n; i++ {
		_, err := s.RegisterTrial(ctx, newTrial(string(rune('a'+i)), "exp"))
		require.NoError(t, err)
	}

	results := make([]*trial.Trial, n+3)
	var wg sync.WaitGroup
	for i := range results {
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
	}
	assert.Len(t, seen, n)
	assert.Equal(t, 3, nilCount)
}

func TestSQLiteHeartbeatRecovery(t *testing.T) {
	s := newTestStorage(t)
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

func TestSQLiteSetTrialStatusCAS(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.RegisterTrial(ctx, newTrial("t1", "exp"))
	require.NoError(t, err)

	_, err = s.SetTrialStatus(ctx, "t1", trial.StatusReserved, trial.StatusCompleted, nil)
	require.Error(t, err, "CAS must fail when the trial is not actually reserved")

	tr, err := s.ReserveTrial(ctx, "exp", storage.DefaultHeartbeatTTL)
	require.NoError(t, err)
	require.NotNil(t, tr)

	got, err := s.SetTrialStatus(ctx, "t1", trial.StatusReserved, trial.StatusCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, trial.StatusCompleted, got.Status)
	assert.NotNil(t, got.EndTime)

	n, err := s.CountCompletedTrials(ctx, "exp")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteRegisterLieDuplicate(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	lie := newTrial("lie1", "exp")
	_, err := s.RegisterLie(ctx, lie)
	require.NoError(t, err)

	_, err = s.RegisterLie(ctx, lie)
	require.Error(t, err)
	var dupErr *storage.ErrDuplicateKey
	assert.ErrorAs(t, err, &dupErr)
}
