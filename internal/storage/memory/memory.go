// Package memory implements storage.Backend using an in-process map,
// grounded on the teacher's MemoryStorage (RWMutex-guarded map) but without
// its FIFO eviction — Orion-Go's trial history must never be silently
// dropped, since a dropped trial would corrupt the completed-trial count
// invariant.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/epistimio/orion-go/internal/metrics"
	"github.com/epistimio/orion-go/internal/storage"
	"github.com/epistimio/orion-go/internal/trial"
)

// Storage is a thread-safe in-memory storage.Backend. Safe for concurrent
// use by multiple goroutines (simulating multiple workers in a single
// process, the common case in tests).
type Storage struct {
	mu          sync.Mutex
	experiments map[string]storage.ExperimentConfig
	trials      map[string]*trial.Trial
	lies        map[string]*trial.Trial
	logger      *slog.Logger
}

// New returns a ready-to-use in-memory storage.Backend.
func New(logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{
		experiments: make(map[string]storage.ExperimentConfig),
		trials:      make(map[string]*trial.Trial),
		lies:        make(map[string]*trial.Trial),
		logger:      logger,
	}
}

func (s *Storage) CreateExperiment(ctx context.Context, cfg storage.ExperimentConfig) (storage.ExperimentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.experiments {
		if e.Name == cfg.Name && e.User == cfg.User && e.Version == cfg.Version {
			return storage.ExperimentConfig{}, &storage.ErrDuplicateKey{Collection: "experiments", Key: cfg.Name}
		}
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	s.experiments[cfg.ID] = cfg
	return cfg, nil
}

func (s *Storage) UpdateExperiment(ctx context.Context, id string, patch storage.ExperimentPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.experiments[id]
	if !ok {
		return &storage.ErrNotFound{Collection: "experiments", Key: id}
	}
	if patch.MaxTrials != nil {
		cfg.MaxTrials = *patch.MaxTrials
	}
	if patch.WorkerTrials != nil {
		cfg.WorkerTrials = *patch.WorkerTrials
	}
	if patch.PoolSize != nil {
		cfg.PoolSize = *patch.PoolSize
	}
	if patch.MaxBroken != nil {
		cfg.MaxBroken = *patch.MaxBroken
	}
	s.experiments[id] = cfg
	return nil
}

func (s *Storage) FetchExperiments(ctx context.Context, q storage.ExperimentQuery) ([]storage.ExperimentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.ExperimentConfig
	for _, e := range s.experiments {
		if q.Name != "" && e.Name != q.Name {
			continue
		}
		if q.User != "" && e.User != q.User {
			continue
		}
		if q.Version != 0 && e.Version != q.Version {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Storage) RegisterTrial(ctx context.Context, t *trial.Trial) (*trial.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trials[t.ID]; exists {
		return nil, &storage.ErrDuplicateKey{Collection: "trials", Key: t.ID}
	}
	c := t.Clone()
	if c.Status == "" {
		c.Status = trial.StatusNew
	}
	s.trials[t.ID] = c
	return c.Clone(), nil
}

func (s *Storage) GetTrial(ctx context.Context, id string) (*trial.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trials[id]
	if !ok {
		return nil, nil
	}
	return t.Clone(), nil
}

func (s *Storage) FetchTrials(ctx context.Context, experimentID string) ([]*trial.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*trial.Trial
	for _, t := range s.trials {
		if t.ExperimentID == experimentID {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (s *Storage) FetchTrialsByStatus(ctx context.Context, experimentID string, status trial.Status) ([]*trial.Trial, error) {
	all, _ := s.FetchTrials(ctx, experimentID)
	var out []*trial.Trial
	for _, t := range all {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Storage) FetchNonCompletedTrials(ctx context.Context, experimentID string) ([]*trial.Trial, error) {
	all, _ := s.FetchTrials(ctx, experimentID)
	var out []*trial.Trial
	for _, t := range all {
		if t.Status != trial.StatusCompleted {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Storage) FetchPendingTrials(ctx context.Context, experimentID string) ([]*trial.Trial, error) {
	all, _ := s.FetchTrials(ctx, experimentID)
	var out []*trial.Trial
	for _, t := range all {
		if t.Status == trial.StatusNew || t.Status == trial.StatusReserved ||
			t.Status == trial.StatusInterrupted || t.Status == trial.StatusSuspended {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Storage) FetchLostTrials(ctx context.Context, experimentID string, ttl time.Duration) ([]*trial.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*trial.Trial
	now := time.Now()
	for _, t := range s.trials {
		if t.ExperimentID != experimentID || t.Status != trial.StatusReserved {
			continue
		}
		if t.Heartbeat != nil && now.Sub(*t.Heartbeat) > ttl {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// sweepLostTrials flips heartbeat-expired reserved trials back to
// interrupted under the same CAS discipline used everywhere else: the
// precondition is the observed heartbeat value, so a concurrent sweep by
// another goroutine that already moved the trial loses the race silently.
func (s *Storage) sweepLostTrials(experimentID string, ttl time.Duration) {
	now := time.Now()
	for _, t := range s.trials {
		if t.ExperimentID != experimentID || t.Status != trial.StatusReserved {
			continue
		}
		if t.Heartbeat == nil || now.Sub(*t.Heartbeat) <= ttl {
			continue
		}
		newStatus, err := trial.Transition(t.Status, trial.EventHeartbeatExpire)
		if err != nil {
			continue
		}
		t.Status = newStatus
		metrics.HeartbeatSweepRecoveredTotal.WithLabelValues(experimentID).Inc()
	}
}

func (s *Storage) ReserveTrial(ctx context.Context, experimentID string, ttl time.Duration) (*trial.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLostTrials(experimentID, ttl)

	for _, t := range s.trials {
		if t.ExperimentID != experimentID || !trial.Eligible(t.Status) {
			continue
		}
		newStatus, err := trial.Transition(t.Status, trial.EventReserve)
		if err != nil {
			continue
		}
		now := time.Now()
		t.Status = newStatus
		t.StartTime = &now
		t.Heartbeat = &now
		return t.Clone(), nil
	}
	return nil, nil
}

func (s *Storage) SetTrialStatus(ctx context.Context, id string, from, to trial.Status, hb *time.Time) (*trial.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trials[id]
	if !ok {
		return nil, &storage.ErrNotFound{Collection: "trials", Key: id}
	}
	if t.Status != from {
		return nil, &storage.ErrFailedUpdate{TrialID: id, Reason: "status no longer " + string(from)}
	}
	t.Status = to
	if hb != nil {
		t.Heartbeat = hb
	}
	if to.IsTerminal() {
		now := time.Now()
		t.EndTime = &now
	}
	return t.Clone(), nil
}

func (s *Storage) PushTrialResults(ctx context.Context, id string, results []trial.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trials[id]
	if !ok {
		return &storage.ErrNotFound{Collection: "trials", Key: id}
	}
	t.Results = append(append([]trial.Result(nil), t.Results...), results...)
	return nil
}

func (s *Storage) UpdateHeartbeat(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trials[id]
	if !ok {
		return &storage.ErrNotFound{Collection: "trials", Key: id}
	}
	now := time.Now()
	t.Heartbeat = &now
	return nil
}

func (s *Storage) RegisterLie(ctx context.Context, t *trial.Trial) (*trial.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lies[t.ID]; exists {
		return nil, &storage.ErrDuplicateKey{Collection: "lies", Key: t.ID}
	}
	c := t.Clone()
	s.lies[t.ID] = c
	return c.Clone(), nil
}

func (s *Storage) CountCompletedTrials(ctx context.Context, experimentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.trials {
		if t.ExperimentID == experimentID && t.Status == trial.StatusCompleted {
			n++
		}
	}
	return n, nil
}

func (s *Storage) CountBrokenTrials(ctx context.Context, experimentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.trials {
		if t.ExperimentID == experimentID && t.Status == trial.StatusBroken {
			n++
		}
	}
	return n, nil
}

func (s *Storage) Close(ctx context.Context) error { return nil }

// Kind identifies this backend for metrics labeling.
func (s *Storage) Kind() string { return "memory" }

var _ storage.Backend = (*Storage)(nil)
