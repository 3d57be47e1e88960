// Package metrics defines the Prometheus instrumentation surface for a
// worker process: trials produced/consumed/broken, reservation latency, and
// heartbeat sweep activity, grounded on the teacher's promauto-vars idiom
// (internal/metrics/config_reload.go, internal/storage/metrics.go).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TrialsProducedTotal counts trials the Producer registered, by
	// experiment and outcome (registered, duplicate).
	TrialsProducedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orion",
			Subsystem: "worker",
			Name:      "trials_produced_total",
			Help:      "Total trials registered by the Producer, by experiment and outcome",
		},
		[]string{"experiment", "outcome"},
	)

	// TrialsConsumedTotal counts trials the Consumer finished, by
	// experiment and terminal status (completed, broken, interrupted).
	TrialsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orion",
			Subsystem: "worker",
			Name:      "trials_consumed_total",
			Help:      "Total trials finished by the Consumer, by experiment and terminal status",
		},
		[]string{"experiment", "status"},
	)

	// LiesRegisteredTotal counts fabricated completed trials registered by
	// the Producer's lie strategy.
	LiesRegisteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orion",
			Subsystem: "worker",
			Name:      "lies_registered_total",
			Help:      "Total lie trials registered for still-pending trials, by experiment",
		},
		[]string{"experiment"},
	)

	// ReservationDuration tracks ReserveTrial latency, including the
	// heartbeat sweep run at its top, by backend.
	ReservationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orion",
			Subsystem: "storage",
			Name:      "reservation_duration_seconds",
			Help:      "Duration of ReserveTrial calls, by storage backend",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"backend"},
	)

	// HeartbeatSweepRecoveredTotal counts trials the heartbeat sweep flipped
	// from reserved back to interrupted, by experiment.
	HeartbeatSweepRecoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orion",
			Subsystem: "storage",
			Name:      "heartbeat_sweep_recovered_total",
			Help:      "Total trials recovered by the heartbeat sweep, by experiment",
		},
		[]string{"experiment"},
	)

	// StorageErrorsTotal counts storage errors by operation and class, using
	// storage.ClassifyError's labels, matching the teacher's
	// StorageErrorsTotal metric shape.
	StorageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orion",
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total storage errors by operation and error class",
		},
		[]string{"operation", "error_class"},
	)

	// ExperimentsBroken is 1 for an experiment currently past max_broken, 0
	// otherwise, sampled by the CLI's info command each time it inspects an
	// experiment (the CLI process is short-lived, so this is a point-in-time
	// sample rather than a continuously maintained gauge).
	ExperimentsBroken = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "orion",
			Subsystem: "experiment",
			Name:      "broken",
			Help:      "1 if the experiment has exceeded max_broken, 0 otherwise",
		},
		[]string{"experiment"},
	)
)
