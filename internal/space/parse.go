package space

import (
	"regexp"
	"strconv"
	"strings"
)

var priorCallRe = regexp.MustCompile(`^([a-zA-Z_]+)\((.*)\)$`)

// ParsePrior parses a canonical prior string such as "loguniform(1e-05,1)"
// or "choices('a','b','c')". It is the exact inverse of Prior.String.
func ParsePrior(s string) (Prior, error) {
	m := priorCallRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Prior{}, &ErrInvalidDefinition{Token: s, Reason: "prior is not a call expression"}
	}
	name := PriorName(m[1])
	argsStr := m[2]

	if name == PriorChoices {
		choices, err := splitQuoted(argsStr)
		if err != nil {
			return Prior{}, &ErrInvalidDefinition{Token: s, Reason: "bad choices list", Cause: err}
		}
		return Prior{Name: PriorChoices, Choices: choices}, nil
	}

	args, err := splitFloats(argsStr)
	if err != nil {
		return Prior{}, &ErrInvalidDefinition{Token: s, Reason: "bad prior arguments", Cause: err}
	}
	return Prior{Name: name, Args: args}, nil
}

func splitFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func splitQuoted(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "'")
		p = strings.TrimSuffix(p, "'")
		out = append(out, p)
	}
	return out, nil
}

// dimDeclRe matches "name~kind-and-shape-prefix,prior(...)"; the kind/shape
// prefix is optional and each of its items is terminated by a ','.
var dimDeclRe = regexp.MustCompile(`^([A-Za-z_][\w.]*)~(.*)$`)

// ParseDimension parses the canonical declaration form produced by
// Dimension.String, e.g. "lr~loguniform(1e-05,1)" or
// "layers~int,shape(3),uniform(1,10)". Round-trips with String (spec
// invariant: Parse(Canonical(d)) == d).
func ParseDimension(s string) (*Dimension, error) {
	m := dimDeclRe.FindStringSubmatch(s)
	if m == nil {
		return nil, &ErrInvalidDefinition{Token: s, Reason: "not a dimension declaration"}
	}
	name := m[1]
	rest := m[2]

	kind := KindReal
	var shape []int

	for {
		if strings.HasPrefix(rest, "int,") {
			kind = KindInteger
			rest = strings.TrimPrefix(rest, "int,")
			continue
		}
		if strings.HasPrefix(rest, "shape(") {
			end := strings.Index(rest, "),")
			if end < 0 {
				return nil, &ErrInvalidDefinition{Token: s, Reason: "unterminated shape()"}
			}
			shapeStr := rest[len("shape(") : end]
			for _, part := range strings.Split(shapeStr, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(part))
				if err != nil {
					return nil, &ErrInvalidDefinition{Token: s, Reason: "bad shape", Cause: err}
				}
				shape = append(shape, n)
			}
			rest = rest[end+len("),"):]
			continue
		}
		break
	}

	// A trailing "~+default" marks an add-resolution default, not part of
	// plain dimension parsing; split it off before parsing the prior.
	priorStr := rest
	var defaultStr string
	if idx := strings.Index(rest, "~+"); idx >= 0 {
		priorStr = rest[:idx]
		defaultStr = rest[idx+2:]
	}

	prior, err := ParsePrior(priorStr)
	if err != nil {
		return nil, err
	}
	if prior.Name == PriorChoices && kind == KindReal {
		kind = KindCategorical
	}
	if prior.Name == PriorFidelity {
		kind = KindFidelity
	}

	if err := validateDimensionShape(name, kind, shape); err != nil {
		return nil, err
	}

	d := NewDimension(name, prior, kind, shape)
	if defaultStr != "" {
		v, err := parseValue(defaultStr, kind)
		if err != nil {
			return nil, err
		}
		d = d.WithDefault(v)
	}
	return d, nil
}

func parseValue(s string, kind Kind) (Value, error) {
	switch kind {
	case KindInteger, KindFidelity:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, &ErrInvalidDefinition{Token: s, Reason: "not an integer", Cause: err}
		}
		return Value{Kind: kind, I: i}, nil
	case KindCategorical:
		return Value{Kind: kind, S: s}, nil
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, &ErrInvalidDefinition{Token: s, Reason: "not a real number", Cause: err}
		}
		return Value{Kind: kind, F: f}, nil
	}
}
