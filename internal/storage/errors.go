package storage

import "fmt"

// ErrDuplicateKey is returned when creating an experiment or registering a
// trial/lie whose key already exists. The Producer treats it as "already
// registered" and continues.
type ErrDuplicateKey struct {
	Collection string // "experiments" or "trials"
	Key        string
}

func (e *ErrDuplicateKey) Error() string {
	return fmt.Sprintf("duplicate key in %s: %s", e.Collection, e.Key)
}

// ErrFailedUpdate indicates a compare-and-set precondition did not hold (a
// lost race). ReserveTrial translates this into a nil result; the
// heartbeat sweep simply moves on to the next candidate.
type ErrFailedUpdate struct {
	TrialID string
	Reason  string
}

func (e *ErrFailedUpdate) Error() string {
	return fmt.Sprintf("failed update on trial %s: %s", e.TrialID, e.Reason)
}

// ErrNotFound indicates a lookup (GetTrial, FetchExperiments by exact key)
// found nothing.
type ErrNotFound struct {
	Collection string
	Key        string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("not found in %s: %s", e.Collection, e.Key)
}

// ClassifyError maps a storage error to a coarse class for metrics
// labeling, following the teacher's ClassifyError-by-type-switch pattern.
func ClassifyError(err error) string {
	switch err.(type) {
	case nil:
		return ""
	case *ErrDuplicateKey:
		return "duplicate_key"
	case *ErrFailedUpdate:
		return "failed_update"
	case *ErrNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
