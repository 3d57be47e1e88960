package evc

import (
	"fmt"

	"github.com/epistimio/orion-go/internal/space"
)

// ResolutionKind mirrors the conflict kinds that can be resolved; each
// carries its own explicit parameter struct rather than a dynamic
// **kwargs-style call, per the design note.
type ResolutionKind string

const (
	ResolveAddDimension    ResolutionKind = "AddDimension"
	ResolveRemoveDimension ResolutionKind = "RemoveDimension"
	ResolveRenameDimension ResolutionKind = "RenameDimension"
	ResolveChangeDimension ResolutionKind = "ChangeDimension"
	ResolveMetadataChange  ResolutionKind = "MetadataChange"
	ResolveExperimentName  ResolutionKind = "ExperimentName"
)

// AddDimensionParams resolves a NewDimension conflict by adopting the new
// dimension with an explicit default for trials coming from the parent.
type AddDimensionParams struct {
	Default space.Value
}

// RemoveDimensionParams resolves a MissingDimension conflict by dropping
// the dimension, recording the default that reconstructs parent trials.
type RemoveDimensionParams struct {
	Default space.Value
}

// RenameDimensionParams resolves a MissingDimension conflict (paired with a
// NewDimension conflict on NewName) by treating the pair as a rename.
type RenameDimensionParams struct {
	NewName string
}

// ChangeDimensionParams resolves a ChangedDimension conflict; the adapter
// is built directly from the conflict's recorded old/new dimensions so no
// extra fields are needed here beyond the two dimensions the caller
// resolves against.
type ChangeDimensionParams struct {
	OldDimension *space.Dimension
	NewDimension *space.Dimension
}

// MetadataChangeParams resolves Algorithm/Code/CommandLine/ScriptConfig
// conflicts by picking the change's effect on crossing trials.
type MetadataChangeParams struct {
	Type ChangeType
}

// Resolution is the user- or marker-chosen way to reconcile a Conflict. It
// produces zero or more Adapters and may register side-effect conflicts
// into the owning Collection (e.g. a rename with differing priors
// registers a ChangedDimension on the new name).
type Resolution struct {
	Kind     ResolutionKind
	Conflict *Conflict
	Adapters []Adapter

	sideEffects []*Conflict
	pairedWith  *Conflict // the NewDimension conflict a rename resolved alongside
}

// Collection owns a live set of conflicts and their resolutions. Revert is
// implemented as deprecation (two-step: mark dependents deprecated, then
// the caller may re-run Detect to rediscover them if still applicable) per
// the design note on cyclic conflict<->resolution references: conflicts
// and resolutions are indices into one collection rather than mutual
// pointers with ownership cycles.
type Collection struct {
	conflicts []*Conflict
}

// NewCollection wraps a freshly detected conflict list.
func NewCollection(conflicts []*Conflict) *Collection {
	return &Collection{conflicts: conflicts}
}

// All returns every conflict in the collection, including resolved and
// deprecated ones.
func (c *Collection) All() []*Conflict { return c.conflicts }

// Remaining returns conflicts that are neither resolved nor deprecated —
// the set a UI should continue to drain.
func (c *Collection) Remaining() []*Conflict {
	var out []*Conflict
	for _, conf := range c.conflicts {
		if !conf.resolved && !conf.deprecated {
			out = append(out, conf)
		}
	}
	return out
}

// AllResolved reports whether every live conflict has been resolved.
func (c *Collection) AllResolved() bool {
	return len(c.Remaining()) == 0
}

// ByKind returns the live (non-deprecated) conflicts of a given kind.
func (c *Collection) ByKind(k Kind) []*Conflict {
	var out []*Conflict
	for _, conf := range c.conflicts {
		if conf.Kind == k && !conf.deprecated {
			out = append(out, conf)
		}
	}
	return out
}

// register adds a newly produced side-effect conflict to the live set.
func (c *Collection) register(conf *Conflict) {
	c.conflicts = append(c.conflicts, conf)
}

// TryResolve resolves conflict with the given kind-specific params, builds
// the resulting adapters, and registers any side-effect conflicts into the
// collection. Returns ErrConflictUnresolvable if params don't match the
// conflict's kind.
func (c *Collection) TryResolve(conflict *Conflict, kind ResolutionKind, params any) (*Resolution, error) {
	res := &Resolution{Kind: kind, Conflict: conflict}

	switch kind {
	case ResolveAddDimension:
		p, ok := params.(AddDimensionParams)
		dp, kok := conflict.Payload.(DimensionPayload)
		if !ok || !kok || conflict.Kind != KindNewDimension {
			return nil, &ErrConflictUnresolvable{Reason: "AddDimension requires a NewDimension conflict"}
		}
		res.Adapters = []Adapter{DimensionAddition{Name: dp.Name, Default: p.Default}}

	case ResolveRemoveDimension:
		p, ok := params.(RemoveDimensionParams)
		dp, kok := conflict.Payload.(DimensionPayload)
		if !ok || !kok || conflict.Kind != KindMissingDimension {
			return nil, &ErrConflictUnresolvable{Reason: "RemoveDimension requires a MissingDimension conflict"}
		}
		res.Adapters = []Adapter{DimensionDeletion{Name: dp.Name, Default: p.Default}}

	case ResolveRenameDimension:
		p, ok := params.(RenameDimensionParams)
		dp, kok := conflict.Payload.(DimensionPayload)
		if !ok || !kok || conflict.Kind != KindMissingDimension {
			return nil, &ErrConflictUnresolvable{Reason: "RenameDimension requires a MissingDimension conflict"}
		}
		res.Adapters = []Adapter{DimensionRenaming{Old: dp.Name, New: p.NewName}}

		// Pair with (and resolve) the matching NewDimension conflict, and
		// emit a side-effect ChangedDimension if the priors differ.
		for _, other := range c.ByKind(KindNewDimension) {
			odp := other.Payload.(DimensionPayload)
			if odp.Name != p.NewName {
				continue
			}
			res.pairedWith = other
			other.resolved = true
			other.resolution = res
			break
		}

	case ResolveChangeDimension:
		p, ok := params.(ChangeDimensionParams)
		if !ok || conflict.Kind != KindChangedDimension {
			return nil, &ErrConflictUnresolvable{Reason: "ChangeDimension requires a ChangedDimension conflict"}
		}
		dp := conflict.Payload.(DimensionPayload)
		res.Adapters = []Adapter{DimensionPriorChange{Name: dp.Name, OldPrior: p.OldDimension, NewPrior: p.NewDimension}}

	case ResolveMetadataChange:
		p, ok := params.(MetadataChangeParams)
		if !ok {
			return nil, &ErrConflictUnresolvable{Reason: "MetadataChange requires MetadataChangeParams"}
		}
		var label kindLabel
		switch conflict.Kind {
		case KindAlgorithm:
			label = ChangeKindAlgorithm
		case KindCode:
			label = ChangeKindCode
		case KindCommandLine:
			label = ChangeKindCommandLine
		case KindScriptConfig:
			label = ChangeKindScriptConfig
		default:
			return nil, &ErrConflictUnresolvable{Reason: fmt.Sprintf("MetadataChange does not apply to %s", conflict.Kind)}
		}
		res.Adapters = []Adapter{MetadataChange{Kind: label, Type: p.Type}}

	case ResolveExperimentName:
		if conflict.Kind != KindExperimentName {
			return nil, &ErrConflictUnresolvable{Reason: "ExperimentName resolution requires an ExperimentName conflict"}
		}
		// Identity change only: no adapter emitted.

	default:
		return nil, &ErrConflictUnresolvable{Reason: fmt.Sprintf("unknown resolution kind %s", kind)}
	}

	conflict.resolved = true
	conflict.resolution = res
	c.register2(res)
	return res, nil
}

// register2 finalizes bookkeeping that needs the fully-built resolution,
// in particular emitting the rename's side-effect ChangedDimension.
func (c *Collection) register2(res *Resolution) {
	if res.Kind != ResolveRenameDimension || res.pairedWith == nil {
		return
	}
	dp := res.Conflict.Payload.(DimensionPayload)  // MissingDimension(a): dp.Prior is a's old prior
	ndp := res.pairedWith.Payload.(DimensionPayload) // NewDimension(b): ndp.Prior is b's new prior
	if dp.Prior == "" || ndp.Prior == "" || dp.Prior == ndp.Prior {
		return
	}
	sideEffect := &Conflict{
		Kind: KindChangedDimension,
		Payload: DimensionPayload{
			Name:     ndp.Name,
			OldPrior: dp.Prior,
			NewPrior: ndp.Prior,
		},
	}
	res.sideEffects = append(res.sideEffects, sideEffect)
	c.register(sideEffect)
}

// Revert undoes a resolution: it nulls the conflict's resolution pointer
// and removes (deprecates) every side-effect conflict it introduced.
// Reverting a rename also un-marks the paired NewDimension conflict.
func (c *Collection) Revert(res *Resolution) {
	res.Conflict.resolved = false
	res.Conflict.resolution = nil

	if res.pairedWith != nil {
		res.pairedWith.resolved = false
		res.pairedWith.resolution = nil
	}

	for _, se := range res.sideEffects {
		se.deprecated = true
	}
	// Deprecated conflicts are removed from the live set entirely, not left
	// marked resolved — the spec's resolution of the Open Question about
	// this exact ambiguity in the original sources.
	live := c.conflicts[:0]
	for _, conf := range c.conflicts {
		if conf.deprecated {
			continue
		}
		live = append(live, conf)
	}
	c.conflicts = live
}

// RenameRemoveTieBreak applies the rename/remove tie-break rule: when a
// MissingDimension resolution is requested with both a matching
// NewDimension conflict available and a remove marker present, remove
// wins, because the user expressed intent explicitly via the marker.
func RenameRemoveTieBreak(hasRemoveMarker bool, hasMatchingNewDimension bool) ResolutionKind {
	if hasRemoveMarker {
		return ResolveRemoveDimension
	}
	if hasMatchingNewDimension {
		return ResolveRenameDimension
	}
	return ResolveRemoveDimension
}
