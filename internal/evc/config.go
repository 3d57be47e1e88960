// Package evc implements experiment version control: conflict detection
// between two experiment configurations, interactive or marker-driven
// resolution, and the pure adapters that keep trials comparable across the
// resulting DAG of experiment versions.
package evc

import "github.com/epistimio/orion-go/internal/space"

// Config is the subset of an experiment's configuration the conflict
// detectors compare. It mirrors experiment.Experiment's branching-relevant
// fields without importing that package, keeping evc free of a cycle.
type Config struct {
	Name             string
	Space            *space.Space
	Algorithm        string
	CodeHash         string
	CommandLineArgs  []string // nameless args, see space.Builder.NamelessArgs
	ScriptConfigHash string
}
