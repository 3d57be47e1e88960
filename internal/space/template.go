package space

import (
	"fmt"
	"strconv"
)

// SlotKind distinguishes the three kinds of positional slot a Template can
// hold for a single command-line token.
type SlotKind int

const (
	SlotLiteral SlotKind = iota
	SlotDimension
	SlotConfigPath
)

// Slot is one positional command-line slot: either passed through verbatim,
// rehydrated from a dimension's value in a concrete trial, or replaced with
// the path of a materialized configuration file.
type Slot struct {
	Kind      SlotKind
	Literal   string // meaningful when Kind == SlotLiteral
	Dimension string // meaningful when Kind == SlotDimension
	// FlagPrefix is the "--name=" prefix preserved for SlotDimension slots
	// declared as "--name~prior(...)" so rehydration reproduces "--name=VALUE".
	FlagPrefix string
}

// Template records, per positional slot, how to turn a concrete Trial back
// into argv (and, if ConfigPath is non-empty, a concrete configuration
// file). Built once by Builder.Build; rehydrated once per trial by the
// Consumer.
type Template struct {
	Slots      []Slot
	ConfigPath string // path to the user's annotated config file, if any
}

// Rehydrate renders concrete CLI arguments for the given parameter
// assignment. It does not touch the filesystem; callers that declared a
// config-file slot must separately materialize that file (see
// RehydrateConfig) before launching the child process.
func (t *Template) Rehydrate(params []Param) ([]string, error) {
	byName := make(map[string]Value, len(params))
	for _, p := range params {
		byName[p.Name] = p.Value
	}
	out := make([]string, 0, len(t.Slots))
	for _, slot := range t.Slots {
		switch slot.Kind {
		case SlotLiteral:
			out = append(out, slot.Literal)
		case SlotConfigPath:
			out = append(out, t.ConfigPath)
		case SlotDimension:
			v, ok := byName[slot.Dimension]
			if !ok {
				return nil, fmt.Errorf("template: no value for dimension %q", slot.Dimension)
			}
			rendered := renderValue(v)
			if slot.FlagPrefix != "" {
				out = append(out, slot.FlagPrefix+rendered)
			} else {
				out = append(out, rendered)
			}
		}
	}
	return out, nil
}

func renderValue(v Value) string {
	switch v.Kind {
	case KindInteger, KindFidelity:
		return strconv.FormatInt(v.I, 10)
	case KindCategorical:
		return v.S
	default:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	}
}
