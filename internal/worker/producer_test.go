package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epistimio/orion-go/internal/experiment"
	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/storage"
	"github.com/epistimio/orion-go/internal/storage/memory"
	"github.com/epistimio/orion-go/internal/trial"
)

// fakeAlgorithm hands out fixed points in order and records observations,
// letting tests assert the idempotent-reobservation contract directly.
type fakeAlgorithm struct {
	points   [][]space.Param
	offset   int
	observed []string
	done     bool
}

// Suggest returns only the next single point regardless of n, exercising
// the contract that Suggest may return fewer points than requested.
func (a *fakeAlgorithm) Suggest(ctx context.Context, n int) ([][]space.Param, error) {
	if a.offset >= len(a.points) {
		return nil, nil
	}
	p := a.points[a.offset]
	a.offset++
	return [][]space.Param{p}, nil
}

func (a *fakeAlgorithm) Observe(ctx context.Context, t *trial.Trial) error {
	a.observed = append(a.observed, t.ID)
	return nil
}

func (a *fakeAlgorithm) IsDone() bool { return a.done }

func newTestExperiment(t *testing.T, algo experiment.Algorithm) (*experiment.Experiment, storage.Backend) {
	t.Helper()
	sp := space.NewSpace()
	d := space.NewDimension("lr", space.Prior{Name: space.PriorUniform, Args: []float64{0, 1}}, space.KindReal, nil)
	require.NoError(t, sp.Add(d))

	backend := memory.New(nil)
	cfg := storage.ExperimentConfig{
		ID: "exp1", Name: "exp", Version: 1, User: "bob",
		SpaceCanon: sp.String(), MaxTrials: 10, WorkerTrials: 10, PoolSize: 2, MaxBroken: 3,
	}
	_, err := backend.CreateExperiment(context.Background(), cfg)
	require.NoError(t, err)

	exp, err := experiment.New(cfg, algo, backend)
	require.NoError(t, err)
	return exp, backend
}

func paramPoint(lr float64) []space.Param {
	return []space.Param{{Name: "lr", Value: space.Value{Kind: space.KindReal, F: lr}}}
}

func TestProducerRegistersNewTrialsUpToPoolSize(t *testing.T) {
	algo := &fakeAlgorithm{points: [][]space.Param{paramPoint(0.1), paramPoint(0.2), paramPoint(0.3)}}
	exp, backend := newTestExperiment(t, algo)
	p := NewProducer(exp, nil, nil)

	ctx := context.Background()
	require.NoError(t, p.Produce(ctx))

	trials, err := backend.FetchTrials(ctx, exp.ID)
	require.NoError(t, err)
	assert.Len(t, trials, 1, "Suggest returning one point per call only registers that one trial")
}

func TestProducerDeduplicatesByHash(t *testing.T) {
	algo := &fakeAlgorithm{points: [][]space.Param{paramPoint(0.5), paramPoint(0.5)}}
	exp, backend := newTestExperiment(t, algo)
	ctx := context.Background()

	pre := &trial.Trial{ExperimentID: exp.ID, Params: paramPoint(0.5), Status: trial.StatusNew}
	pre.ID = trial.HashParams(pre.Params, nil)
	_, err := backend.RegisterTrial(ctx, pre)
	require.NoError(t, err)

	p := NewProducer(exp, nil, nil)
	require.NoError(t, p.Produce(ctx))

	trials, err := backend.FetchTrials(ctx, exp.ID)
	require.NoError(t, err)
	assert.Len(t, trials, 1, "a duplicate suggestion (by parameter hash) must not register a second trial")
}

func TestProducerUpdateIsIdempotent(t *testing.T) {
	algo := &fakeAlgorithm{}
	exp, backend := newTestExperiment(t, algo)
	ctx := context.Background()

	tr := &trial.Trial{ExperimentID: exp.ID, Params: paramPoint(0.7), Status: trial.StatusCompleted}
	tr.ID = trial.HashParams(tr.Params, nil)
	_, err := backend.RegisterTrial(ctx, tr)
	require.NoError(t, err)

	p := NewProducer(exp, nil, nil)
	require.NoError(t, p.Update(ctx))
	require.NoError(t, p.Update(ctx))

	assert.Equal(t, []string{tr.ID}, algo.observed, "re-observing an already-observed trial must be a no-op")
}

type alwaysLie struct{}

func (alwaysLie) Lie(pending *trial.Trial) (trial.Result, bool) {
	return trial.Result{Name: "objective", Type: trial.ResultObjective, Value: 0.5}, true
}

func TestProducerRegistersLiesForPendingTrials(t *testing.T) {
	algo := &fakeAlgorithm{}
	exp, backend := newTestExperiment(t, algo)
	ctx := context.Background()

	tr := &trial.Trial{ExperimentID: exp.ID, Params: paramPoint(0.9), Status: trial.StatusReserved}
	tr.ID = trial.HashParams(tr.Params, nil)
	_, err := backend.RegisterTrial(ctx, tr)
	require.NoError(t, err)

	p := NewProducer(exp, alwaysLie{}, nil)
	require.NoError(t, p.Produce(ctx))
}
