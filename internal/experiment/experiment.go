// Package experiment is the stateful façade binding a Space, an algorithm,
// and a storage backend, matching spec.md's Experiment component: the
// object workers and the CLI actually talk to.
package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/storage"
	"github.com/epistimio/orion-go/internal/trial"
)

// Algorithm is the suggestion/observation contract an optimization
// algorithm must satisfy. Suggest is allowed to return fewer than n points
// (the Producer must tolerate this); Observe must be idempotent under
// re-observation of an already-observed trial.
type Algorithm interface {
	Suggest(ctx context.Context, n int) ([][]space.Param, error)
	Observe(ctx context.Context, t *trial.Trial) error
	IsDone() bool
}

// ErrBrokenExperiment is returned once an experiment's broken-trial count
// has exceeded MaxBroken; the worker loop treats this as a fatal exit.
type ErrBrokenExperiment struct {
	Name    string
	Broken  int
	Allowed int
}

func (e *ErrBrokenExperiment) Error() string {
	return fmt.Sprintf("experiment %q broken: %d broken trials exceeds max_broken=%d", e.Name, e.Broken, e.Allowed)
}

// Metadata carries an experiment's branching-relevant and descriptive
// fields, matching storage.Metadata in shape but used by callers that
// should not need to import the storage package directly.
type Metadata = storage.Metadata

// Refers places an Experiment in the EVC tree.
type Refers = storage.Refers

// Experiment is the runtime façade: it knows its own identity and budget,
// and delegates persistence to a storage.Backend and suggestion to an
// Algorithm.
type Experiment struct {
	ID      string
	Name    string
	Version int
	User    string

	Space     *space.Space
	Algorithm Algorithm

	MaxTrials    int
	WorkerTrials int
	PoolSize     int
	MaxBroken    int

	Metadata Metadata
	Refers   Refers

	storage storage.Backend
}

// New wraps an existing storage.ExperimentConfig plus an Algorithm into a
// runtime Experiment.
func New(cfg storage.ExperimentConfig, algo Algorithm, backend storage.Backend) (*Experiment, error) {
	sp, err := space.ParseSpace(cfg.SpaceCanon)
	if err != nil {
		return nil, fmt.Errorf("experiment: invalid stored space: %w", err)
	}
	return &Experiment{
		ID:           cfg.ID,
		Name:         cfg.Name,
		Version:      cfg.Version,
		User:         cfg.User,
		Space:        sp,
		Algorithm:    algo,
		MaxTrials:    cfg.MaxTrials,
		WorkerTrials: cfg.WorkerTrials,
		PoolSize:     cfg.PoolSize,
		MaxBroken:    cfg.MaxBroken,
		Metadata:     cfg.Metadata,
		Refers:       cfg.Refers,
		storage:      backend,
	}, nil
}

// Config returns the persisted representation of e, suitable for
// storage.Backend.CreateExperiment / UpdateExperiment.
func (e *Experiment) Config() storage.ExperimentConfig {
	return storage.ExperimentConfig{
		ID:           e.ID,
		Name:         e.Name,
		Version:      e.Version,
		User:         e.User,
		SpaceCanon:   e.Space.String(),
		MaxTrials:    e.MaxTrials,
		WorkerTrials: e.WorkerTrials,
		PoolSize:     e.PoolSize,
		MaxBroken:    e.MaxBroken,
		Metadata:     e.Metadata,
		Refers:       e.Refers,
	}
}

// CompletedCount returns the number of trials that have reached completed.
func (e *Experiment) CompletedCount(ctx context.Context) (int, error) {
	return e.storage.CountCompletedTrials(ctx, e.ID)
}

// BrokenCount returns the number of trials that have reached broken.
func (e *Experiment) BrokenCount(ctx context.Context) (int, error) {
	return e.storage.CountBrokenTrials(ctx, e.ID)
}

// IsDone reports whether completed_count >= max_trials.
func (e *Experiment) IsDone(ctx context.Context) (bool, error) {
	n, err := e.CompletedCount(ctx)
	if err != nil {
		return false, err
	}
	return n >= e.MaxTrials, nil
}

// CheckBroken returns ErrBrokenExperiment once the broken-trial count
// exceeds MaxBroken.
func (e *Experiment) CheckBroken(ctx context.Context) error {
	n, err := e.BrokenCount(ctx)
	if err != nil {
		return err
	}
	if n > e.MaxBroken {
		return &ErrBrokenExperiment{Name: e.Name, Broken: n, Allowed: e.MaxBroken}
	}
	return nil
}

// PendingCount reports the number of trials not yet in a terminal state,
// used by the Producer to know how many new suggestions are needed to
// refill PoolSize.
func (e *Experiment) PendingCount(ctx context.Context) (int, error) {
	pending, err := e.storage.FetchPendingTrials(ctx, e.ID)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// ReserveTrial reserves the next eligible trial, if any, running the
// heartbeat sweep first.
func (e *Experiment) ReserveTrial(ctx context.Context, heartbeatTTL time.Duration) (*trial.Trial, error) {
	return e.storage.ReserveTrial(ctx, e.ID, heartbeatTTL)
}

func (e *Experiment) Storage() storage.Backend { return e.storage }
