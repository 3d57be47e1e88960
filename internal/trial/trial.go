// Package trial defines the Trial record, its status state machine, and the
// stable parameter hash used for identity and deduplication.
package trial

import (
	"time"

	"github.com/epistimio/orion-go/internal/space"
)

// Status is a trial's lifecycle state, per the authoritative state machine
// in the specification.
type Status string

const (
	StatusNew         Status = "new"
	StatusReserved    Status = "reserved"
	StatusInterrupted Status = "interrupted"
	StatusSuspended   Status = "suspended"
	StatusCompleted   Status = "completed"
	StatusBroken      Status = "broken"
)

// IsTerminal reports whether s is a terminal status (completed or broken).
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusBroken
}

// ResultType tags the kind of a reported Result.
type ResultType string

const (
	ResultObjective ResultType = "objective"
	ResultGradient  ResultType = "gradient"
	ResultStatistic ResultType = "statistic"
	ResultConstraint ResultType = "constraint"
)

// Result is one entry in a trial's ordered result list.
type Result struct {
	Name  string
	Type  ResultType
	Value float64
	Array []float64 // used when the result is vector-valued (e.g. gradient)
}

// Trial is an immutable record of one parameter assignment within an
// experiment, its results, and its lifecycle status.
type Trial struct {
	ID           string
	ExperimentID string
	Params       []space.Param
	Results      []Result
	Status       Status
	Parents      []string

	SubmitTime *time.Time
	StartTime  *time.Time
	EndTime    *time.Time
	Heartbeat  *time.Time
}

// Objective returns the trial's single objective result, if one has been
// reported.
func (t *Trial) Objective() (Result, bool) {
	for _, r := range t.Results {
		if r.Type == ResultObjective {
			return r, true
		}
	}
	return Result{}, false
}

// Clone returns a deep-enough copy of t suitable for building a modified
// trial without aliasing the original's slices (Trials are otherwise
// immutable once registered in storage).
func (t *Trial) Clone() *Trial {
	c := *t
	c.Params = append([]space.Param(nil), t.Params...)
	c.Results = append([]Result(nil), t.Results...)
	c.Parents = append([]string(nil), t.Parents...)
	return &c
}
