// Package calibration applies a fitted monotone post-processing transform
// (Platt scaling or isotonic regression) to a model's base probabilities.
//
// Fitting a calibrator from labeled samples happens offline in the training
// pipeline, not here (see spec.md §1 Non-goals) — this package only reapplies
// calibration curves that were already fit, generalizing the
// pool-adjacent-violators lookup the training pipeline's isotonic fitter
// (internal/score/calibration in the teacher repo) uses internally.
package calibration

import (
	"fmt"
	"sort"

	"github.com/sawpanic/hoopdivergence/internal/numeric"
)

// Kind identifies which transform a Calibrator applies.
type Kind string

const (
	KindNone     Kind = "NONE"
	KindPlatt    Kind = "PLATT"
	KindIsotonic Kind = "ISOTONIC"
)

// Calibrator applies a fitted calibration transform to base probabilities.
// Zero value is the NONE (identity) calibrator.
type Calibrator struct {
	Kind Kind

	// Platt parameters: p_cal = sigmoid(Alpha + Beta*logit(p_base))
	Alpha float64
	Beta  float64

	// Isotonic knots: Xs strictly increasing, Ys non-decreasing in [0,1],
	// len(Xs) == len(Ys) >= 1.
	Xs []float64
	Ys []float64
}

// NewNone returns the identity calibrator.
func NewNone() Calibrator { return Calibrator{Kind: KindNone} }

// NewPlatt returns a Platt-scaling calibrator.
func NewPlatt(alpha, beta float64) Calibrator {
	return Calibrator{Kind: KindPlatt, Alpha: alpha, Beta: beta}
}

// NewIsotonic returns an isotonic calibrator from sorted knots. xs must be
// strictly increasing and ys non-decreasing; callers (the artifact loader)
// are responsible for that invariant since it is established once at
// manifest-parse time.
func NewIsotonic(xs, ys []float64) (Calibrator, error) {
	if len(xs) != len(ys) {
		return Calibrator{}, fmt.Errorf("isotonic calibrator: len(xs)=%d != len(ys)=%d", len(xs), len(ys))
	}
	if len(xs) == 0 {
		return Calibrator{}, fmt.Errorf("isotonic calibrator: empty knot set")
	}
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return Calibrator{}, fmt.Errorf("isotonic calibrator: xs not strictly increasing at index %d", i)
		}
		if ys[i] < ys[i-1] {
			return Calibrator{}, fmt.Errorf("isotonic calibrator: ys not non-decreasing at index %d", i)
		}
	}
	return Calibrator{Kind: KindIsotonic, Xs: xs, Ys: ys}, nil
}

// Apply transforms a batch of base probabilities. Returns
// numeric.ErrInvalidProbability if any input is NaN or outside [0,1] beyond
// clipping tolerance.
func (c Calibrator) Apply(pBase []float64) ([]float64, error) {
	if err := numeric.ValidateProbabilities(pBase); err != nil {
		return nil, err
	}

	out := make([]float64, len(pBase))
	switch c.Kind {
	case KindNone, "":
		copy(out, pBase)
	case KindPlatt:
		for i, p := range pBase {
			out[i] = numeric.Sigmoid(c.Alpha + c.Beta*numeric.Logit(p))
		}
	case KindIsotonic:
		for i, p := range pBase {
			out[i] = c.isotonicLookup(p)
		}
	default:
		return nil, fmt.Errorf("calibration: unknown kind %q", c.Kind)
	}
	return out, nil
}

// isotonicLookup returns y_i for the largest i with x_i <= x (left-continuous
// step function), clamped at both ends, via binary search on Xs.
func (c Calibrator) isotonicLookup(x float64) float64 {
	if len(c.Xs) == 0 {
		return x
	}
	if x < c.Xs[0] {
		return c.Ys[0]
	}
	if x >= c.Xs[len(c.Xs)-1] {
		return c.Ys[len(c.Ys)-1]
	}
	// sort.Search finds the first index where Xs[i] > x; the answer is the
	// index immediately before that.
	i := sort.Search(len(c.Xs), func(i int) bool { return c.Xs[i] > x })
	return c.Ys[i-1]
}
