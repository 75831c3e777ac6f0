// Package features turns a batch of domain.SnapshotRow into the design
// matrix an artifact's inference path expects: columns in exact
// feature_schema order, numeric features standardized by the artifact's
// preprocessing stats, and possession/period expanded to fixed one-hot
// columns (spec.md §4.C).
//
// An artifact's feature_schema lists ONE entry per output column — including
// each one-hot dummy by its fixed name ("possession_home", "period_3", ...)
// — so the design matrix's column count always equals len(feature_schema),
// matching a LOGREG artifact's weight-vector length one-for-one.
package features

import (
	"fmt"
	"math"

	"github.com/sawpanic/hoopdivergence/internal/domain"
	"github.com/sawpanic/hoopdivergence/internal/model"
)

// FeatureEncodingError is returned when a categorical value cannot be
// encoded against the fixed one-hot schema (e.g. an out-of-range period).
type FeatureEncodingError struct {
	Feature string
	Value   interface{}
}

func (e *FeatureEncodingError) Error() string {
	return fmt.Sprintf("feature encoding: column %q cannot encode value %v", e.Feature, e.Value)
}

// MissingFeatureError is returned when a LOGREG artifact's schema requires a
// feature whose value is NaN and whose nan_policy is not "keep".
type MissingFeatureError struct {
	Feature  string
	RowIndex int
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("missing feature %q at row %d", e.Feature, e.RowIndex)
}

const minStd = 1e-12

// possessionDummies and periodDummies name the fixed one-hot columns the
// spec requires (§4.C): unknown categorical possession values fall back to
// the "unknown" dummy; an out-of-range period is a hard FeatureEncodingError.
var possessionDummies = map[string]domain.Possession{
	"possession_home":    domain.PossessionHome,
	"possession_away":    domain.PossessionAway,
	"possession_unknown": domain.PossessionUnknown,
}

var periodDummies = map[string]int{
	"period_1": 1,
	"period_2": 2,
	"period_3": 3,
	"period_4": 4,
}

// Build produces a float64 matrix with rows aligned to rows and columns in
// artifact.FeatureSchema order.
func Build(artifact *model.Artifact, rows []domain.SnapshotRow) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i := range out {
		out[i] = make([]float64, len(artifact.FeatureSchema))
	}

	for col, feature := range artifact.FeatureSchema {
		if want, ok := possessionDummies[feature]; ok {
			fillPossessionDummy(rows, out, col, want)
			continue
		}
		if want, ok := periodDummies[feature]; ok {
			if err := fillPeriodDummy(rows, out, col, want); err != nil {
				return nil, err
			}
			continue
		}
		if err := fillNumericColumn(artifact, rows, out, col, feature); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func fillPossessionDummy(rows []domain.SnapshotRow, out [][]float64, col int, want domain.Possession) {
	for i, row := range rows {
		p := row.Possession
		if p != domain.PossessionHome && p != domain.PossessionAway && p != domain.PossessionUnknown {
			p = domain.PossessionUnknown // unmapped values become "unknown"
		}
		if p == want {
			out[i][col] = 1
		}
	}
}

func fillPeriodDummy(rows []domain.SnapshotRow, out [][]float64, col int, want int) error {
	for i, row := range rows {
		if row.Period < 1 || row.Period > 4 {
			return &FeatureEncodingError{Feature: "period", Value: row.Period}
		}
		if row.Period == want {
			out[i][col] = 1
		}
	}
	return nil
}

// rawValue extracts the named numeric feature from a row before
// standardization. Feature names not recognized here (and not one of the
// one-hot dummies above) are a FeatureEncodingError: the schema must only
// reference features this builder knows how to compute.
func rawValue(row domain.SnapshotRow, feature string) (float64, bool) {
	switch feature {
	case "score_diff":
		return float64(row.ScoreDiff), true
	case "time_remaining_regulation":
		return float64(row.TimeRemainingRegulation), true
	case "home_score":
		return float64(row.HomeScore), true
	case "away_score":
		return float64(row.AwayScore), true
	case "espn_home_prob":
		return row.ESPNHomeProb, true
	case "score_diff_div_sqrt_time_remaining":
		return row.ScoreDiffDivSqrtTimeRemaining, true
	case "espn_home_prob_lag_1":
		return row.ESPNHomeProbLag1, true
	case "espn_home_prob_delta_1":
		return row.ESPNHomeProbDelta1, true
	case "opening_prob_home_fair":
		return row.OpeningProbHomeFair, true
	case "opening_overround":
		return row.OpeningOverround, true
	default:
		return 0, false
	}
}

func fillNumericColumn(artifact *model.Artifact, rows []domain.SnapshotRow, out [][]float64, col int, feature string) error {
	pp, known := artifact.Preprocess.Numeric[feature]
	mean, std, nanPolicy := 0.0, 1.0, model.NaNPolicyFail
	if known {
		mean, std, nanPolicy = pp.Mean, pp.Std, pp.NaN
	}
	if std < minStd {
		std = minStd
	}

	isOpeningOdds := feature == "opening_overround" || feature == "opening_prob_home_fair"

	for i, row := range rows {
		v, recognized := rawValue(row, feature)
		if !recognized {
			return &FeatureEncodingError{Feature: feature, Value: "unrecognized feature name"}
		}

		if math.IsNaN(v) {
			if isOpeningOdds {
				// Carried through unstandardized regardless of nan_policy:
				// the predictor reads this column directly to detect
				// "opening odds available" for the baseline policy.
				out[i][col] = math.NaN()
				continue
			}
			if nanPolicy != model.NaNPolicyKeep {
				return &MissingFeatureError{Feature: feature, RowIndex: i}
			}
			out[i][col] = math.NaN()
			continue
		}

		if isOpeningOdds {
			out[i][col] = v
			continue
		}
		out[i][col] = (v - mean) / std
	}
	return nil
}
