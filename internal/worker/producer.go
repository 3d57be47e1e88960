// Package worker implements the Producer/Consumer/Worker Loop triad that
// drives an Experiment to completion, grounded on
// original_source/src/orion/core/worker/__init__.py's workon and
// consumer.py's Consumer.
package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/epistimio/orion-go/internal/experiment"
	"github.com/epistimio/orion-go/internal/metrics"
	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/storage"
	"github.com/epistimio/orion-go/internal/trial"
)

// LieStrategy fabricates a plausible result for a still-pending trial so
// the algorithm can account for outstanding work when suggesting new
// points under parallelism (spec.md §4.6 step 4).
type LieStrategy interface {
	Lie(pending *trial.Trial) (trial.Result, bool)
}

// Producer drives an Experiment's algorithm: refilling the pending pool to
// PoolSize, registering new trials, and propagating lies for trials still
// in flight. One Producer instance is local to a single worker process —
// it is never shared across workers.
type Producer struct {
	exp         *experiment.Experiment
	lie         LieStrategy
	logger      *slog.Logger
	lastObserve map[string]trial.Status // last-seen status per trial id, for idempotent Observe
}

// NewProducer returns a Producer for exp. lie may be nil, in which case no
// lie trials are registered.
func NewProducer(exp *experiment.Experiment, lie LieStrategy, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{exp: exp, lie: lie, logger: logger, lastObserve: make(map[string]trial.Status)}
}

// Produce refills the pending pool toward PoolSize: asks the algorithm for
// enough new suggestions, deduplicates against already-registered trials
// by parameter hash, and registers the survivors plus one lie per
// currently-pending trial.
//
// suggest is allowed to return fewer points than requested; Produce does
// not loop to compensate — the worker loop will call it again next cycle.
func (p *Producer) Produce(ctx context.Context) error {
	pending, err := p.exp.PendingCount(ctx)
	if err != nil {
		return err
	}
	need := p.exp.PoolSize - pending
	if need <= 0 {
		return p.registerLies(ctx)
	}

	suggestions, err := p.exp.Algorithm.Suggest(ctx, need)
	if err != nil {
		return err
	}

	existing, err := p.exp.Storage().FetchTrials(ctx, p.exp.ID)
	if err != nil {
		return err
	}
	fidelity := trial.FidelitySet(p.exp.Space)
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[trial.HashParams(t.Params, fidelity)] = true
	}

	for _, params := range suggestions {
		h := trial.HashParams(params, fidelity)
		if seen[h] {
			continue
		}
		seen[h] = true

		t := &trial.Trial{
			ExperimentID: p.exp.ID,
			Params:       append([]space.Param(nil), params...),
			Status:       trial.StatusNew,
		}
		t.ID = trial.HashParams(t.Params, nil)
		if _, err := p.exp.Storage().RegisterTrial(ctx, t); err != nil {
			if storageDuplicate(err) {
				metrics.TrialsProducedTotal.WithLabelValues(p.exp.ID, "duplicate").Inc()
				continue
			}
			return err
		}
		metrics.TrialsProducedTotal.WithLabelValues(p.exp.ID, "registered").Inc()
	}

	return p.registerLies(ctx)
}

func (p *Producer) registerLies(ctx context.Context) error {
	if p.lie == nil {
		return nil
	}
	pending, err := p.exp.Storage().FetchPendingTrials(ctx, p.exp.ID)
	if err != nil {
		return err
	}
	for _, t := range pending {
		result, ok := p.lie.Lie(t)
		if !ok {
			continue
		}
		lieTrial := t.Clone()
		lieTrial.Status = trial.StatusCompleted
		lieTrial.Results = append(lieTrial.Results, result)
		if _, err := p.exp.Storage().RegisterLie(ctx, lieTrial); err != nil {
			if storageDuplicate(err) {
				continue
			}
			return err
		}
		metrics.LiesRegisteredTotal.WithLabelValues(p.exp.ID).Inc()
	}
	return nil
}

// Update fetches trials that have completed since the last call and
// observes each on the algorithm exactly once. Re-observation of an
// already-observed trial (same id, same status) is a no-op, satisfying the
// idempotent-reobservation contract of spec.md §4.6.
func (p *Producer) Update(ctx context.Context) error {
	completed, err := p.exp.Storage().FetchTrialsByStatus(ctx, p.exp.ID, trial.StatusCompleted)
	if err != nil {
		return err
	}
	for _, t := range completed {
		if p.lastObserve[t.ID] == t.Status {
			continue
		}
		if err := p.exp.Algorithm.Observe(ctx, t); err != nil {
			return err
		}
		p.lastObserve[t.ID] = t.Status
	}
	return nil
}

// storageDuplicate reports whether err is a storage.ErrDuplicateKey — the
// Producer treats a duplicate trial/lie registration as "already present"
// and continues, rather than failing the whole Produce call.
func storageDuplicate(err error) bool {
	var dupErr *storage.ErrDuplicateKey
	return errors.As(err, &dupErr)
}
