package storage

import (
	"context"
	"time"

	"github.com/epistimio/orion-go/internal/trial"
)

// Backend is the contract every storage implementation must uphold so that
// concurrent reservation, status transitions, and heartbeat-based recovery
// are race-free. Implementations: memory (tests/demos), sqlite (Lite
// profile), postgres (Standard profile).
type Backend interface {
	CreateExperiment(ctx context.Context, cfg ExperimentConfig) (ExperimentConfig, error)
	UpdateExperiment(ctx context.Context, id string, patch ExperimentPatch) error
	FetchExperiments(ctx context.Context, q ExperimentQuery) ([]ExperimentConfig, error)

	RegisterTrial(ctx context.Context, t *trial.Trial) (*trial.Trial, error)
	GetTrial(ctx context.Context, id string) (*trial.Trial, error)
	FetchTrials(ctx context.Context, experimentID string) ([]*trial.Trial, error)
	FetchTrialsByStatus(ctx context.Context, experimentID string, status trial.Status) ([]*trial.Trial, error)
	FetchNonCompletedTrials(ctx context.Context, experimentID string) ([]*trial.Trial, error)
	FetchPendingTrials(ctx context.Context, experimentID string) ([]*trial.Trial, error)
	FetchLostTrials(ctx context.Context, experimentID string, ttl time.Duration) ([]*trial.Trial, error)

	// ReserveTrial atomically transitions exactly one eligible trial
	// (new|interrupted|suspended) to reserved, stamping start_time and
	// heartbeat. It first runs the heartbeat sweep (see Design §4.5).
	// Returns (nil, nil) when no trial is eligible.
	ReserveTrial(ctx context.Context, experimentID string, ttl time.Duration) (*trial.Trial, error)

	// SetTrialStatus performs a CAS status transition. hb, if non-nil,
	// updates the heartbeat atomically with the status change (used when
	// moving into reserved).
	SetTrialStatus(ctx context.Context, id string, from, to trial.Status, hb *time.Time) (*trial.Trial, error)
	PushTrialResults(ctx context.Context, id string, results []trial.Result) error
	UpdateHeartbeat(ctx context.Context, id string) error

	RegisterLie(ctx context.Context, t *trial.Trial) (*trial.Trial, error)

	CountCompletedTrials(ctx context.Context, experimentID string) (int, error)
	CountBrokenTrials(ctx context.Context, experimentID string) (int, error)

	// Kind identifies the backend implementation ("memory", "sqlite",
	// "postgres") for metrics labeling, following the teacher's
	// StorageBackendType gauge convention.
	Kind() string

	Close(ctx context.Context) error
}

// ExperimentPatch carries a partial update to an experiment's mutable
// fields (pool_size, max_trials, worker_trials, max_broken — the fields an operator may
// adjust mid-run).
type ExperimentPatch struct {
	MaxTrials    *int
	WorkerTrials *int
	PoolSize     *int
	MaxBroken    *int
}
