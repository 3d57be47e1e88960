// Package storage defines the backend-agnostic contract for experiments and
// trials: the atomic reservation protocol, heartbeat recovery, and the lie
// mechanism used by parallelism strategies.
package storage

import (
	"time"

	"github.com/epistimio/orion-go/internal/trial"
)

// ExperimentConfig is the persisted representation of an experiment.
// Identity is (Name, Version) scoped per User.
type ExperimentConfig struct {
	ID           string
	Name         string
	Version      int
	User         string
	SpaceCanon   string // canonical Space.String() form
	Algorithm    string
	MaxTrials    int
	WorkerTrials int
	PoolSize     int
	MaxBroken    int
	Metadata     Metadata
	Refers       Refers
}

// Metadata carries the experiment's branching-relevant and descriptive
// fields: user, script, args, and a code-version hash.
type Metadata struct {
	User       string
	UserScript string
	UserArgs   []string
	CodeHash   string
	Datetime   time.Time
}

// Refers places an experiment in the EVC tree: its root, its immediate
// parent, and the adapter-chain identifiers on its inbound edge (resolved
// against the evc package by the experiment façade, kept opaque here to
// avoid an import cycle).
type Refers struct {
	RootID      string
	ParentID    string
	AdapterSpec string // serialized adapter chain, interpreted by evc
}

// ExperimentQuery filters FetchExperiments.
type ExperimentQuery struct {
	Name    string
	User    string
	Version int // 0 means "any version"
}

// Heartbeat-sweep defaults; backends use these unless overridden by config.
const DefaultHeartbeatTTL = 5 * time.Minute
