package space

import (
	"regexp"
	"strings"
)

// Builder turns a user's annotated command line (and, transitively, an
// annotated configuration file) into a Space plus a Template. It holds no
// state across calls to Build; any caller-visible configuration is passed
// explicitly, per the design note replacing the original global-singleton
// configuration with explicit values threaded through.
type Builder struct{}

// NewBuilder returns a ready-to-use Builder.
func NewBuilder() *Builder { return &Builder{} }

var flagDimRe = regexp.MustCompile(`^(--?[A-Za-z_][\w.-]*)~(.+)$`)

// Build parses annotated command-line tokens into a Space and a Template.
// Dimension tokens look like "--lr~loguniform(1e-5,1)". A "--config PATH"
// pair only records PATH in Template.ConfigPath; Build does not read the
// file (BuildFromConfigFile scans an annotated configuration file
// separately). Fails with ErrInvalidDefinition on a duplicate dimension name
// or an unparseable prior. There is no placeholder syntax that refers to an
// already-declared dimension, so no unknown-dimension check is made.
func (b *Builder) Build(tokens []string) (*Space, *Template, error) {
	sp := NewSpace()
	tmpl := &Template{}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if tok == "--config" && i+1 < len(tokens) {
			tmpl.ConfigPath = tokens[i+1]
			tmpl.Slots = append(tmpl.Slots,
				Slot{Kind: SlotLiteral, Literal: tok},
				Slot{Kind: SlotConfigPath},
			)
			i++
			continue
		}

		if m := flagDimRe.FindStringSubmatch(tok); m != nil {
			flagPrefix := m[1]
			declBody := m[2]
			name := strings.TrimLeft(flagPrefix, "-")

			d, err := ParseDimension(name + "~" + declBody)
			if err != nil {
				return nil, nil, err
			}
			if err := sp.Add(d); err != nil {
				return nil, nil, err
			}
			tmpl.Slots = append(tmpl.Slots, Slot{
				Kind:       SlotDimension,
				Dimension:  name,
				FlagPrefix: flagPrefix + "=",
			})
			continue
		}

		tmpl.Slots = append(tmpl.Slots, Slot{Kind: SlotLiteral, Literal: tok})
	}

	return sp, tmpl, nil
}

// NamelessArgs returns a stable string representation of tokens with
// dimension declarations stripped down to their flag name, used by the EVC
// engine to detect command-line changes while ignoring dimension
// declarations (prior changes are their own conflict class).
func (b *Builder) NamelessArgs(tokens []string) string {
	var parts []string
	for _, tok := range tokens {
		if m := flagDimRe.FindStringSubmatch(tok); m != nil {
			parts = append(parts, m[1])
			continue
		}
		parts = append(parts, tok)
	}
	return strings.Join(parts, " ")
}
