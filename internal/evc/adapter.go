package evc

import (
	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/trial"
)

// Adapter is a pure, invertible-in-intent rewrite applied to trials when
// crossing an EVC edge. Forward maps a parent-frame trial into the child
// frame; Backward the reverse. Both return ok=false when the adapter
// filters the trial out entirely (the only side effect an adapter may have
// besides rewriting values) — per the filter-discipline law, a rejecting
// adapter never silently alters values instead.
type Adapter interface {
	Forward(t *trial.Trial) (*trial.Trial, bool)
	Backward(t *trial.Trial) (*trial.Trial, bool)
}

// Chain composes adapters left to right, in the child→parent direction
// described by the specification: Forward walks the chain in order (each
// step moving one edge toward the child), Backward walks it in reverse.
type Chain []Adapter

func (c Chain) Forward(t *trial.Trial) (*trial.Trial, bool) {
	cur := t
	for _, a := range c {
		next, ok := a.Forward(cur)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func (c Chain) Backward(t *trial.Trial) (*trial.Trial, bool) {
	cur := t
	for i := len(c) - 1; i >= 0; i-- {
		next, ok := c[i].Backward(cur)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// DimensionAddition augments a parent trial with a default value for a
// dimension the child added. This is the sole exception to the filter
// discipline: Forward never rejects, it always adds; Backward always
// strips.
type DimensionAddition struct {
	Name    string
	Default space.Value
}

func (a DimensionAddition) Forward(t *trial.Trial) (*trial.Trial, bool) {
	c := t.Clone()
	c.Params = append(c.Params, space.Param{Name: a.Name, Value: a.Default})
	return c, true
}

func (a DimensionAddition) Backward(t *trial.Trial) (*trial.Trial, bool) {
	c := t.Clone()
	c.Params = dropParam(c.Params, a.Name)
	return c, true
}

// DimensionDeletion is DimensionAddition's exact inverse: forward strips
// the dimension the child removed (recording its prior default so the
// parent frame can be reconstructed), backward restores it.
type DimensionDeletion struct {
	Name    string
	Default space.Value
}

func (a DimensionDeletion) Forward(t *trial.Trial) (*trial.Trial, bool) {
	c := t.Clone()
	c.Params = dropParam(c.Params, a.Name)
	return c, true
}

func (a DimensionDeletion) Backward(t *trial.Trial) (*trial.Trial, bool) {
	c := t.Clone()
	c.Params = append(c.Params, space.Param{Name: a.Name, Value: a.Default})
	return c, true
}

// DimensionRenaming relabels a parameter; both directions simply swap the
// name, never the value.
type DimensionRenaming struct {
	Old, New string
}

func (a DimensionRenaming) Forward(t *trial.Trial) (*trial.Trial, bool) {
	return renameParam(t, a.Old, a.New), true
}

func (a DimensionRenaming) Backward(t *trial.Trial) (*trial.Trial, bool) {
	return renameParam(t, a.New, a.Old), true
}

// DimensionPriorChange filters out trials whose value falls outside the new
// prior's support. It never alters the value of a trial it keeps.
type DimensionPriorChange struct {
	Name             string
	OldPrior, NewPrior *space.Dimension
}

func (a DimensionPriorChange) Forward(t *trial.Trial) (*trial.Trial, bool) {
	v, ok := paramValue(t, a.Name)
	if !ok || !a.NewPrior.Contains(v) {
		return nil, false
	}
	return t, true
}

func (a DimensionPriorChange) Backward(t *trial.Trial) (*trial.Trial, bool) {
	v, ok := paramValue(t, a.Name)
	if !ok || !a.OldPrior.Contains(v) {
		return nil, false
	}
	return t, true
}

// ChangeType controls how a code/command-line/config/algorithm change
// adapter treats trials crossing its edge.
type ChangeType string

const (
	ChangeUnsure   ChangeType = "unsure"
	ChangeNoEffect ChangeType = "noeffect"
	ChangeBreak    ChangeType = "break"
)

// MetadataChange is the shared implementation behind CodeChange,
// CommandLineChange, ScriptConfigChange, and AlgorithmChange: noeffect is
// identity both ways, unsure is identity both ways but tags a warning,
// break drops the trial in the direction that crosses the change (forward,
// i.e. parent trials do not carry over to the child).
type MetadataChange struct {
	Kind kindLabel
	Type ChangeType
}

type kindLabel string

const (
	ChangeKindCode         kindLabel = "code"
	ChangeKindCommandLine  kindLabel = "cli"
	ChangeKindScriptConfig kindLabel = "config"
	ChangeKindAlgorithm    kindLabel = "algorithm"
)

func (m MetadataChange) Forward(t *trial.Trial) (*trial.Trial, bool) {
	switch m.Type {
	case ChangeBreak:
		return nil, false
	case ChangeUnsure:
		return tagWarning(t, string(m.Kind)+" change unsure"), true
	default:
		return t, true
	}
}

func (m MetadataChange) Backward(t *trial.Trial) (*trial.Trial, bool) {
	// The change only crosses in the forward (parent->child) direction;
	// backward is always identity regardless of type.
	return t, true
}

func tagWarning(t *trial.Trial, msg string) *trial.Trial {
	c := t.Clone()
	c.Results = append(c.Results, trial.Result{Name: "warning", Type: trial.ResultStatistic, Value: 0})
	_ = msg // warning text is surfaced via logging at the call site, not stored inline
	return c
}

func dropParam(params []space.Param, name string) []space.Param {
	out := make([]space.Param, 0, len(params))
	for _, p := range params {
		if p.Name != name {
			out = append(out, p)
		}
	}
	return out
}

func renameParam(t *trial.Trial, from, to string) *trial.Trial {
	c := t.Clone()
	for i, p := range c.Params {
		if p.Name == from {
			c.Params[i].Name = to
		}
	}
	return c
}

func paramValue(t *trial.Trial, name string) (space.Value, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return space.Value{}, false
}
