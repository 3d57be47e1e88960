package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/epistimio/orion-go/internal/experiment"
	"github.com/epistimio/orion-go/internal/metrics"
	"github.com/epistimio/orion-go/internal/notify"
	"github.com/epistimio/orion-go/internal/storage"
	"github.com/epistimio/orion-go/internal/trial"
)

// DefaultReservationRate caps how often a single worker hammers the backend
// with ReserveTrial/heartbeat traffic when no trial is available, avoiding a
// busy-poll storm across many workers contending for the same pool.
const DefaultReservationRate = 20 // per second

// ExitCode mirrors workon's integer return: 0 is a clean exit (done, or
// pool already full), 1 is a fatal exit (experiment.is_broken).
type ExitCode int

const (
	ExitOK     ExitCode = 0
	ExitBroken ExitCode = 1
)

// Loop orchestrates reserve/produce/consume until termination, grounded on
// original_source/src/orion/core/worker/__init__.py's workon. Python's bare
// integer return and implicit loop-forever-on-inf become an explicit Go
// for-loop with a typed ExitCode and an error for abnormal termination.
type Loop struct {
	Experiment   *experiment.Experiment
	Producer     *Producer
	Consumer     *Consumer
	HeartbeatTTL time.Duration
	// Limiter paces ReserveTrial calls on the reserve-miss path (no trial
	// available this cycle), so a worker fleet contending for a small pool
	// doesn't turn into a busy-poll storm against the storage backend.
	Limiter *rate.Limiter
	// Notifier fans out completed/broken trial events to dashboard clients.
	// May be nil, in which case no events are published.
	Notifier *notify.Hub
	logger   *slog.Logger
}

// NewLoop returns a Loop for the given experiment/producer/consumer triad.
func NewLoop(exp *experiment.Experiment, producer *Producer, consumer *Consumer, heartbeatTTL time.Duration, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeatTTL <= 0 {
		heartbeatTTL = storage.DefaultHeartbeatTTL
	}
	return &Loop{
		Experiment:   exp,
		Producer:     producer,
		Consumer:     consumer,
		HeartbeatTTL: heartbeatTTL,
		Limiter:      rate.NewLimiter(rate.Limit(DefaultReservationRate), 1),
		logger:       logger,
	}
}

// Run drives the experiment for up to workerTrials loop cycles (pass 0 for
// unbounded — the Python iterator's itertools.count() case); a cycle that
// reserves nothing and produces instead counts as one. It also stops once
// the experiment's completed-trial count reaches Experiment.WorkerTrials
// (when positive). It returns the exit code the CLI should use as its
// process exit status.
func (l *Loop) Run(ctx context.Context, workerTrials int) (ExitCode, error) {
	for i := 0; workerTrials <= 0 || i < workerTrials; i++ {
		if err := ctx.Err(); err != nil {
			return ExitOK, nil
		}

		if err := l.Experiment.CheckBroken(ctx); err != nil {
			l.logger.Error("search ended: too many broken trials", "error", err)
			return ExitBroken, err
		}

		concurrent, err := l.concurrentWorkers(ctx)
		if err != nil {
			return ExitBroken, err
		}
		if concurrent >= l.Experiment.PoolSize {
			l.logger.Info("pool size reached, exiting cleanly",
				"concurrent_workers", concurrent, "pool_size", l.Experiment.PoolSize)
			return ExitOK, nil
		}

		reserveStart := time.Now()
		t, err := l.Experiment.ReserveTrial(ctx, l.HeartbeatTTL)
		metrics.ReservationDuration.WithLabelValues(l.Experiment.Storage().Kind()).Observe(time.Since(reserveStart).Seconds())
		if err != nil {
			metrics.StorageErrorsTotal.WithLabelValues("reserve_trial", storage.ClassifyError(err)).Inc()
			return ExitBroken, err
		}

		if t == nil {
			if l.Limiter != nil {
				if err := l.Limiter.Wait(ctx); err != nil {
					return ExitOK, nil
				}
			}
			if err := l.Producer.Update(ctx); err != nil {
				return ExitBroken, err
			}
			done, err := l.Experiment.IsDone(ctx)
			if err != nil {
				return ExitBroken, err
			}
			if done {
				break
			}
			if err := l.Producer.Produce(ctx); err != nil {
				return ExitBroken, err
			}
			continue
		}

		status, results, err := l.Consumer.Consume(ctx, t)
		if err != nil && errors.Is(err, ErrAbortWorker) {
			l.logger.Error("consumer requested worker abort", "trial", t.ID)
			_, _ = l.Experiment.Storage().SetTrialStatus(ctx, t.ID, trial.StatusReserved, status, nil)
			return ExitBroken, err
		}
		if err != nil {
			return ExitBroken, err
		}
		// A cancelled ctx must not stop the interrupted status from being
		// persisted, so storage calls here run without its cancellation.
		if err := l.finishTrial(context.WithoutCancel(ctx), t, status, results); err != nil {
			return ExitBroken, err
		}
		if ctx.Err() != nil {
			return ExitOK, nil
		}

		completed, err := l.Experiment.CompletedCount(ctx)
		if err != nil {
			return ExitBroken, err
		}
		if l.Experiment.WorkerTrials > 0 && completed >= l.Experiment.WorkerTrials {
			break
		}
	}
	return ExitOK, nil
}

func (l *Loop) finishTrial(ctx context.Context, t *trial.Trial, status trial.Status, results []trial.Result) error {
	if len(results) > 0 {
		if err := l.Experiment.Storage().PushTrialResults(ctx, t.ID, results); err != nil {
			return err
		}
	}
	_, err := l.Experiment.Storage().SetTrialStatus(ctx, t.ID, trial.StatusReserved, status, nil)
	if err != nil {
		return fmt.Errorf("worker: finish trial %s: %w", t.ID, err)
	}

	metrics.TrialsConsumedTotal.WithLabelValues(l.Experiment.ID, string(status)).Inc()
	if l.Notifier != nil && (status == trial.StatusCompleted || status == trial.StatusBroken) {
		l.Notifier.Publish(notify.TrialEvent{
			ExperimentID: l.Experiment.ID,
			TrialID:      t.ID,
			Status:       string(status),
			Timestamp:    time.Now(),
		})
	}
	return nil
}

// concurrentWorkers counts trials currently reserved for the experiment,
// the Go analogue of infer_number_of_concurrent_workers's running|reserved
// count (Orion-Go has no separate "running" status; reserved covers it).
func (l *Loop) concurrentWorkers(ctx context.Context) (int, error) {
	reserved, err := l.Experiment.Storage().FetchTrialsByStatus(ctx, l.Experiment.ID, trial.StatusReserved)
	if err != nil {
		return 0, err
	}
	return len(reserved), nil
}
