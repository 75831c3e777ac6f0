package features

import (
	"math"
	"testing"

	"github.com/sawpanic/hoopdivergence/internal/calibration"
	"github.com/sawpanic/hoopdivergence/internal/domain"
	"github.com/sawpanic/hoopdivergence/internal/model"
)

func testArtifact(schema []string, preprocess model.Preprocess) *model.Artifact {
	return &model.Artifact{
		Version:       "test",
		ModelKind:     model.KindLogReg,
		FeatureSchema: schema,
		Preprocess:    preprocess,
		Calibrator:    calibration.NewNone(),
		Weights:       &model.LogRegWeights{W: make([]float64, len(schema))},
	}
}

func TestBuildNumericStandardization(t *testing.T) {
	a := testArtifact([]string{"score_diff"}, model.Preprocess{
		Numeric: map[string]model.NumericPreprocess{"score_diff": {Mean: 5, Std: 2}},
	})
	rows := []domain.SnapshotRow{{ScoreDiff: 9}}
	x, err := Build(a, rows)
	if err != nil {
		t.Fatal(err)
	}
	want := (9.0 - 5) / 2
	if math.Abs(x[0][0]-want) > 1e-12 {
		t.Errorf("standardized value = %v, want %v", x[0][0], want)
	}
}

func TestBuildStdFloorPreventsDivideByZero(t *testing.T) {
	a := testArtifact([]string{"score_diff"}, model.Preprocess{
		Numeric: map[string]model.NumericPreprocess{"score_diff": {Mean: 0, Std: 0}},
	})
	rows := []domain.SnapshotRow{{ScoreDiff: 3}}
	x, err := Build(a, rows)
	if err != nil {
		t.Fatal(err)
	}
	if math.IsInf(x[0][0], 0) || math.IsNaN(x[0][0]) {
		t.Errorf("expected finite value with std floor, got %v", x[0][0])
	}
}

func TestBuildColumnOrderMatchesSchema(t *testing.T) {
	schema := []string{"possession_away", "score_diff", "possession_home"}
	a := testArtifact(schema, model.Preprocess{
		Numeric: map[string]model.NumericPreprocess{"score_diff": {Mean: 0, Std: 1}},
	})
	rows := []domain.SnapshotRow{{ScoreDiff: 4, Possession: domain.PossessionHome}}
	x, err := Build(a, rows)
	if err != nil {
		t.Fatal(err)
	}
	if x[0][0] != 0 {
		t.Errorf("possession_away column = %v, want 0", x[0][0])
	}
	if x[0][1] != 4 {
		t.Errorf("score_diff column = %v, want 4", x[0][1])
	}
	if x[0][2] != 1 {
		t.Errorf("possession_home column = %v, want 1", x[0][2])
	}
}

func TestBuildUnknownPossessionFallsBackToUnknownDummy(t *testing.T) {
	schema := []string{"possession_home", "possession_away", "possession_unknown"}
	a := testArtifact(schema, model.Preprocess{})
	rows := []domain.SnapshotRow{{Possession: "weird_value"}}
	x, err := Build(a, rows)
	if err != nil {
		t.Fatal(err)
	}
	if x[0][0] != 0 || x[0][1] != 0 || x[0][2] != 1 {
		t.Errorf("expected unknown dummy set, got %v", x[0])
	}
}

func TestBuildRejectsOutOfRangePeriod(t *testing.T) {
	a := testArtifact([]string{"period_1"}, model.Preprocess{})
	rows := []domain.SnapshotRow{{Period: 7}}
	_, err := Build(a, rows)
	if err == nil {
		t.Fatal("expected FeatureEncodingError for out-of-range period")
	}
	if _, ok := err.(*FeatureEncodingError); !ok {
		t.Errorf("expected *FeatureEncodingError, got %T", err)
	}
}

func TestBuildRejectsMissingNumericFeature(t *testing.T) {
	a := testArtifact([]string{"espn_home_prob"}, model.Preprocess{
		Numeric: map[string]model.NumericPreprocess{"espn_home_prob": {Mean: 0, Std: 1, NaN: model.NaNPolicyFail}},
	})
	rows := []domain.SnapshotRow{{ESPNHomeProb: math.NaN()}}
	_, err := Build(a, rows)
	if err == nil {
		t.Fatal("expected MissingFeatureError for NaN with fail policy")
	}
	if _, ok := err.(*MissingFeatureError); !ok {
		t.Errorf("expected *MissingFeatureError, got %T", err)
	}
}

func TestBuildKeepsNaNWhenPolicyAllows(t *testing.T) {
	a := testArtifact([]string{"espn_home_prob"}, model.Preprocess{
		Numeric: map[string]model.NumericPreprocess{"espn_home_prob": {Mean: 0, Std: 1, NaN: model.NaNPolicyKeep}},
	})
	rows := []domain.SnapshotRow{{ESPNHomeProb: math.NaN()}}
	x, err := Build(a, rows)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(x[0][0]) {
		t.Errorf("expected NaN to be forwarded, got %v", x[0][0])
	}
}

func TestBuildCarriesOpeningOverroundUnstandardized(t *testing.T) {
	a := testArtifact([]string{"opening_overround"}, model.Preprocess{
		Numeric: map[string]model.NumericPreprocess{"opening_overround": {Mean: 100, Std: 5}},
	})
	rows := []domain.SnapshotRow{{OpeningOverround: 1.05}}
	x, err := Build(a, rows)
	if err != nil {
		t.Fatal(err)
	}
	if x[0][0] != 1.05 {
		t.Errorf("opening_overround should pass through unstandardized, got %v", x[0][0])
	}
}

func TestBuildDeterministic(t *testing.T) {
	schema := []string{"score_diff", "possession_home", "period_2"}
	a := testArtifact(schema, model.Preprocess{
		Numeric: map[string]model.NumericPreprocess{"score_diff": {Mean: 1, Std: 2}},
	})
	rows := []domain.SnapshotRow{
		{ScoreDiff: 5, Possession: domain.PossessionHome, Period: 2},
		{ScoreDiff: -3, Possession: domain.PossessionAway, Period: 1},
	}
	x1, err := Build(a, rows)
	if err != nil {
		t.Fatal(err)
	}
	x2, err := Build(a, rows)
	if err != nil {
		t.Fatal(err)
	}
	for i := range x1 {
		for j := range x1[i] {
			if x1[i][j] != x2[i][j] {
				t.Errorf("non-deterministic build at [%d][%d]: %v != %v", i, j, x1[i][j], x2[i][j])
			}
		}
	}
}
