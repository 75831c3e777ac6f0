package numeric

import (
	"math"
	"testing"
)

func TestSigmoidLogitRoundTrip(t *testing.T) {
	for _, p := range []float64{0.001, 0.25, 0.5, 0.75, 0.999} {
		z := Logit(p)
		got := Sigmoid(z)
		if math.Abs(got-p) > 1e-6 {
			t.Errorf("Sigmoid(Logit(%v)) = %v, want %v", p, got, p)
		}
	}
}

func TestLogitClipsExtremes(t *testing.T) {
	if math.IsInf(Logit(0), 0) || math.IsInf(Logit(1), 0) {
		t.Fatal("Logit(0) and Logit(1) must not be infinite after clipping")
	}
}

func TestClipProbability(t *testing.T) {
	if ClipProbability(-5) != probClip {
		t.Error("expected negative input clipped to probClip")
	}
	if ClipProbability(5) != 1-probClip {
		t.Error("expected >1 input clipped to 1-probClip")
	}
}

func TestValidateProbabilitiesRejectsNaN(t *testing.T) {
	err := ValidateProbabilities([]float64{0.5, math.NaN()})
	if err == nil {
		t.Fatal("expected error for NaN probability")
	}
}

func TestValidateProbabilitiesToleratesSmallOvershoot(t *testing.T) {
	if err := ValidateProbabilities([]float64{-1e-10, 1 + 1e-10}); err != nil {
		t.Errorf("expected values within clip tolerance to pass, got %v", err)
	}
}

func TestMeanLogLossPerfectPrediction(t *testing.T) {
	loss := MeanLogLoss([]float64{0.999999999999, 0.000000000001}, []float64{1, 0})
	if loss > 1e-6 {
		t.Errorf("expected near-zero loss for near-perfect predictions, got %v", loss)
	}
}

func TestBrierRange(t *testing.T) {
	b := Brier([]float64{1, 0, 0.5}, []float64{1, 0, 1})
	want := (0 + 0 + 0.25) / 3
	if math.Abs(b-want) > 1e-9 {
		t.Errorf("Brier = %v, want %v", b, want)
	}
}

func TestECEWithinUnitInterval(t *testing.T) {
	p := make([]float64, 100)
	y := make([]float64, 100)
	for i := range p {
		p[i] = float64(i) / 100
		if i%2 == 0 {
			y[i] = 1
		}
	}
	ece := ECE(p, y, 20)
	if ece < 0 || ece > 1 {
		t.Errorf("ECE out of range: %v", ece)
	}
}

func TestAUCRandomIsAboutHalf(t *testing.T) {
	p := []float64{0.1, 0.9, 0.1, 0.9}
	y := []float64{1, 0, 0, 1}
	auc := AUC(p, y)
	if math.Abs(auc-0.5) > 1e-9 {
		t.Errorf("AUC = %v, want 0.5 for scores unrelated to labels", auc)
	}
}

func TestAUCPerfectSeparation(t *testing.T) {
	p := []float64{0.1, 0.2, 0.8, 0.9}
	y := []float64{0, 0, 1, 1}
	auc := AUC(p, y)
	if math.Abs(auc-1.0) > 1e-9 {
		t.Errorf("AUC = %v, want 1.0 for perfectly separated classes", auc)
	}
}

func TestAUCWithTies(t *testing.T) {
	p := []float64{0.5, 0.5, 0.5, 0.5}
	y := []float64{1, 0, 1, 0}
	auc := AUC(p, y)
	if math.Abs(auc-0.5) > 1e-9 {
		t.Errorf("AUC with all-tied scores = %v, want 0.5", auc)
	}
}

func TestAUCDegenerateSingleClass(t *testing.T) {
	auc := AUC([]float64{0.1, 0.9}, []float64{1, 1})
	if auc != 0.5 {
		t.Errorf("AUC with single class present = %v, want 0.5 fallback", auc)
	}
}
