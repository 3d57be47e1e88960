package evc

import (
	"fmt"
	"sort"
)

// Kind identifies one of the canonical conflict classes. Modeled as a
// tagged variant (kind + payload) per the design note replacing the
// original class hierarchy with an explicit registry.
type Kind string

const (
	KindNewDimension     Kind = "NewDimension"
	KindMissingDimension Kind = "MissingDimension"
	KindChangedDimension Kind = "ChangedDimension"
	KindAlgorithm        Kind = "Algorithm"
	KindCode             Kind = "Code"
	KindCommandLine      Kind = "CommandLine"
	KindScriptConfig     Kind = "ScriptConfig"
	KindExperimentName   Kind = "ExperimentName"
)

// DimensionPayload carries the dimension name(s) relevant to a
// New/Missing/ChangedDimension conflict. Prior carries that side's
// canonical prior string for New/MissingDimension conflicts; OldPrior and
// NewPrior are used instead for ChangedDimension conflicts.
type DimensionPayload struct {
	Name     string // new or missing dimension name
	Prior    string // canonical prior string, for New/MissingDimension
	OldPrior string // canonical old prior string, for ChangedDimension
	NewPrior string // canonical new prior string, for ChangedDimension
}

// ScalarPayload carries the two compared values for a scalar metadata
// conflict (Algorithm, Code, CommandLine, ScriptConfig, ExperimentName).
type ScalarPayload struct {
	Old string
	New string
}

// Conflict is a detected semantic difference between old_config and
// new_config. Every conflict carries enough state (Payload) to produce a
// Resolution via TryResolve.
type Conflict struct {
	Kind    Kind
	Payload any // DimensionPayload or ScalarPayload, by Kind

	resolved   bool
	deprecated bool
	resolution *Resolution
}

// Resolved reports whether this conflict has an attached resolution.
func (c *Conflict) Resolved() bool { return c.resolved && !c.deprecated }

// Deprecated reports whether this conflict was removed as the side effect
// of another resolution (see Collection.deprecate). A deprecated conflict
// is dropped from the live set entirely, never left marked resolved (the
// spec's resolution of the corresponding Open Question).
func (c *Conflict) Deprecated() bool { return c.deprecated }

// Resolution returns the attached resolution, if any.
func (c *Conflict) Resolution() *Resolution { return c.resolution }

func (c *Conflict) String() string {
	return fmt.Sprintf("%s(%v)", c.Kind, c.Payload)
}

// detector is one conflict class's independent detection function.
type detector func(old, new Config) []*Conflict

// registry lists every conflict class. Detection dispatches over it sorted
// by class name, making detection deterministic and order-independent.
var registry = map[Kind]detector{
	KindNewDimension:     detectNewDimension,
	KindMissingDimension: detectMissingDimension,
	KindChangedDimension: detectChangedDimension,
	KindAlgorithm:        detectAlgorithm,
	KindCode:             detectCode,
	KindCommandLine:      detectCommandLine,
	KindScriptConfig:     detectScriptConfig,
	KindExperimentName:   detectExperimentName,
}

// Detect runs every registered conflict class against (old, new) and
// returns all detected conflicts. Classes are dispatched in lexical order
// of their Kind name.
func Detect(old, new Config) []*Conflict {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	var out []*Conflict
	for _, k := range kinds {
		out = append(out, registry[Kind(k)](old, new)...)
	}
	return out
}

func detectNewDimension(old, new Config) []*Conflict {
	var out []*Conflict
	for _, name := range new.Space.Names() {
		if _, ok := old.Space.Get(name); !ok {
			d, _ := new.Space.Get(name)
			out = append(out, &Conflict{Kind: KindNewDimension, Payload: DimensionPayload{Name: name, Prior: d.Prior().String()}})
		}
	}
	return out
}

func detectMissingDimension(old, new Config) []*Conflict {
	var out []*Conflict
	for _, name := range old.Space.Names() {
		if _, ok := new.Space.Get(name); !ok {
			d, _ := old.Space.Get(name)
			out = append(out, &Conflict{Kind: KindMissingDimension, Payload: DimensionPayload{Name: name, Prior: d.Prior().String()}})
		}
	}
	return out
}

func detectChangedDimension(old, new Config) []*Conflict {
	var out []*Conflict
	for _, name := range old.Space.Names() {
		oldDim, ok := old.Space.Get(name)
		if !ok {
			continue
		}
		newDim, ok := new.Space.Get(name)
		if !ok {
			continue
		}
		oldPrior, newPrior := oldDim.Prior().String(), newDim.Prior().String()
		if oldPrior != newPrior {
			out = append(out, &Conflict{Kind: KindChangedDimension, Payload: DimensionPayload{
				Name: name, OldPrior: oldPrior, NewPrior: newPrior,
			}})
		}
	}
	return out
}

func detectAlgorithm(old, new Config) []*Conflict {
	if old.Algorithm != new.Algorithm {
		return []*Conflict{{Kind: KindAlgorithm, Payload: ScalarPayload{Old: old.Algorithm, New: new.Algorithm}}}
	}
	return nil
}

func detectCode(old, new Config) []*Conflict {
	if old.CodeHash != new.CodeHash {
		return []*Conflict{{Kind: KindCode, Payload: ScalarPayload{Old: old.CodeHash, New: new.CodeHash}}}
	}
	return nil
}

func detectCommandLine(old, new Config) []*Conflict {
	oldArgs := joinArgs(old.CommandLineArgs)
	newArgs := joinArgs(new.CommandLineArgs)
	if oldArgs != newArgs {
		return []*Conflict{{Kind: KindCommandLine, Payload: ScalarPayload{Old: oldArgs, New: newArgs}}}
	}
	return nil
}

func detectScriptConfig(old, new Config) []*Conflict {
	if old.ScriptConfigHash != new.ScriptConfigHash {
		return []*Conflict{{Kind: KindScriptConfig, Payload: ScalarPayload{Old: old.ScriptConfigHash, New: new.ScriptConfigHash}}}
	}
	return nil
}

func detectExperimentName(old, new Config) []*Conflict {
	// Always emitted: a branch is, definitionally, a new (name, version)
	// pair, so this conflict always triggers the branching decision.
	return []*Conflict{{Kind: KindExperimentName, Payload: ScalarPayload{Old: old.Name, New: new.Name}}}
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
