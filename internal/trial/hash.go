package trial

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/epistimio/orion-go/internal/space"
)

// HashParams returns a stable identity hash over a sorted parameter
// assignment. The hash is invariant under reordering of params and differs
// whenever any parameter value changes.
//
// When fidelityDims is non-empty, those dimension names are excluded from
// the hash (the fidelity-ignoring variant used for cross-fidelity
// deduplication): the hash then differs iff any non-fidelity parameter
// changes.
func HashParams(params []space.Param, fidelityDims map[string]bool) string {
	sorted := append([]space.Param(nil), params...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	h := sha256.New()
	for _, p := range sorted {
		if fidelityDims != nil && fidelityDims[p.Name] {
			continue
		}
		h.Write([]byte(p.Name))
		h.Write([]byte{0})
		h.Write([]byte(renderForHash(p.Value)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func renderForHash(v space.Value) string {
	switch v.Kind {
	case space.KindInteger, space.KindFidelity:
		return strconv.FormatInt(v.I, 10)
	case space.KindCategorical:
		return v.S
	default:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	}
}

// FallbackID returns a random identity for a trial whose params are not yet
// known well enough to hash deterministically (a lie trial fabricated from
// an algorithm suggestion that carries no concrete parameter assignment).
// Ordinary trials always use HashParams; this is strictly a fallback.
func FallbackID() string {
	return uuid.NewString()
}

// FidelitySet builds the fidelity-dimension name set from a space, for use
// with HashParams.
func FidelitySet(sp *space.Space) map[string]bool {
	out := make(map[string]bool)
	for _, name := range sp.Names() {
		d, _ := sp.Get(name)
		if d.Kind() == space.KindFidelity {
			out[name] = true
		}
	}
	return out
}
