// Package algorithm provides a default Algorithm implementation so
// cmd/orion has something runnable out of the box. Algorithm
// implementations beyond this baseline are out of scope (spec.md §1); this
// random-search sampler exists only to exercise experiment.Algorithm and
// drive the worker loop end to end.
package algorithm

import (
	"context"
	"math"
	"math/rand"

	"github.com/epistimio/orion-go/internal/space"
	"github.com/epistimio/orion-go/internal/trial"
)

// RandomSearch samples each dimension independently from its prior. Its
// suggestions never depend on observations (Observe only counts them for
// IsDone), so re-observing a trial leaves the next suggestion unchanged.
type RandomSearch struct {
	Space     *space.Space
	MaxTrials int
	rng       *rand.Rand

	observed int
}

// NewRandomSearch returns a RandomSearch over sp, done once MaxTrials
// trials have been observed.
func NewRandomSearch(sp *space.Space, maxTrials int, seed int64) *RandomSearch {
	return &RandomSearch{Space: sp, MaxTrials: maxTrials, rng: rand.New(rand.NewSource(seed))}
}

// Suggest draws up to n independent samples from the space, one full
// parameter assignment per requested point.
func (a *RandomSearch) Suggest(ctx context.Context, n int) ([][]space.Param, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([][]space.Param, 0, n)
	for i := 0; i < n; i++ {
		point := make([]space.Param, 0, a.Space.Len())
		for _, name := range a.Space.Names() {
			d, _ := a.Space.Get(name)
			v, err := a.sample(d)
			if err != nil {
				return nil, err
			}
			point = append(point, space.Param{Name: name, Value: v})
		}
		out = append(out, point)
	}
	return out, nil
}

// Observe counts the trial toward IsDone; random search does not otherwise
// adapt based on results.
func (a *RandomSearch) Observe(ctx context.Context, t *trial.Trial) error {
	a.observed++
	return nil
}

// IsDone reports whether enough trials have been observed.
func (a *RandomSearch) IsDone() bool {
	return a.MaxTrials > 0 && a.observed >= a.MaxTrials
}

func (a *RandomSearch) sample(d *space.Dimension) (space.Value, error) {
	prior := d.Prior()
	switch prior.Name {
	case space.PriorUniform:
		low, high := prior.Args[0], prior.Args[1]
		f := low + a.rng.Float64()*(high-low)
		return a.toKind(d.Kind(), f), nil
	case space.PriorLogUniform:
		logLow, logHigh := math.Log(prior.Args[0]), math.Log(prior.Args[1])
		f := math.Exp(logLow + a.rng.Float64()*(logHigh-logLow))
		return a.toKind(d.Kind(), f), nil
	case space.PriorNormal:
		mean, sd := prior.Args[0], prior.Args[1]
		f := mean + a.rng.NormFloat64()*sd
		return a.toKind(d.Kind(), f), nil
	case space.PriorChoices:
		choice := prior.Choices[a.rng.Intn(len(prior.Choices))]
		return space.Value{Kind: space.KindCategorical, S: choice}, nil
	case space.PriorFidelity:
		// Fidelity dimensions are supplied by the caller's schedule, not
		// sampled; report the upper bound as the default rung.
		return space.Value{Kind: space.KindFidelity, I: int64(prior.Args[1])}, nil
	default:
		if def, ok := d.Default(); ok {
			return def, nil
		}
		return space.Value{}, nil
	}
}

func (a *RandomSearch) toKind(kind space.Kind, f float64) space.Value {
	if kind == space.KindInteger {
		return space.Value{Kind: kind, I: int64(math.Round(f))}
	}
	return space.Value{Kind: kind, F: f}
}
