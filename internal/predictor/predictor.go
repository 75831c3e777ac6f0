// Package predictor combines an artifact's raw-logit surface (LOGREG or
// GBT), the opening-odds baseline policy, and the artifact's calibrator into
// the final calibrated home-win probability (spec.md §4.E).
package predictor

import (
	"fmt"
	"math"

	"github.com/sawpanic/hoopdivergence/internal/domain"
	"github.com/sawpanic/hoopdivergence/internal/features"
	"github.com/sawpanic/hoopdivergence/internal/model"
	"github.com/sawpanic/hoopdivergence/internal/numeric"
)

// Predict runs inference for a batch of rows against an artifact: builds the
// design matrix, computes the raw logit, applies the opening-odds baseline
// when configured, and applies the artifact's calibrator. The artifact is
// read-only and safe for concurrent use by multiple callers (spec.md §4.E
// "prediction itself is re-entrant").
func Predict(artifact *model.Artifact, rows []domain.SnapshotRow) ([]float64, error) {
	x, err := features.Build(artifact, rows)
	if err != nil {
		return nil, fmt.Errorf("predictor: building design matrix: %w", err)
	}

	z, err := rawLogit(artifact, x)
	if err != nil {
		return nil, fmt.Errorf("predictor: computing raw logit: %w", err)
	}

	if artifact.BaselinePolicy == model.BaselineOpeningOddsLogit {
		applyBaseline(rows, z)
	}

	pBase := make([]float64, len(z))
	for i, zi := range z {
		pBase[i] = numeric.Sigmoid(zi)
	}

	p, err := artifact.Calibrator.Apply(pBase)
	if err != nil {
		return nil, fmt.Errorf("predictor: applying calibrator: %w", err)
	}
	return p, nil
}

func rawLogit(artifact *model.Artifact, x [][]float64) ([]float64, error) {
	switch artifact.ModelKind {
	case model.KindLogReg:
		return logRegMargin(artifact, x), nil
	case model.KindGBT:
		tree, err := artifact.Tree()
		if err != nil {
			return nil, err
		}
		return tree.RawMargin(x)
	default:
		return nil, fmt.Errorf("unsupported model kind %q", artifact.ModelKind)
	}
}

func logRegMargin(artifact *model.Artifact, x [][]float64) []float64 {
	w := artifact.Weights.W
	b := artifact.Weights.B
	z := make([]float64, len(x))
	for i, row := range x {
		sum := b
		for j, v := range row {
			sum += v * w[j]
		}
		z[i] = sum
	}
	return z
}

// applyBaseline adds logit(opening_prob_home_fair) to each row's raw logit
// in place. A NaN opening probability contributes 0 (spec.md §4.E step 2,
// §3.1 Artifact baseline_policy, §8 property 3).
func applyBaseline(rows []domain.SnapshotRow, z []float64) {
	for i, row := range rows {
		if math.IsNaN(row.OpeningProbHomeFair) {
			continue // contributes 0
		}
		z[i] += numeric.Logit(row.OpeningProbHomeFair)
	}
}
