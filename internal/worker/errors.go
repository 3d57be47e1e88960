package worker

import "github.com/epistimio/orion-go/internal/experiment"

// ErrBrokenExperiment re-exports experiment.ErrBrokenExperiment under the
// worker package, since the worker loop is where callers observe it.
type ErrBrokenExperiment = experiment.ErrBrokenExperiment
