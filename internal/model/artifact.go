// Package model represents a trained, calibrated win-probability artifact:
// the immutable in-memory form of a model loaded once per process (spec.md
// §3.1 Artifact, §4.D, §6.2).
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sawpanic/hoopdivergence/internal/calibration"
)

// Kind identifies the underlying model family.
type Kind string

const (
	KindLogReg Kind = "LOGREG"
	KindGBT    Kind = "GBT"
)

// BaselinePolicy controls whether the model's raw logit is combined with
// the pre-game opening-odds logit (spec.md §3.1, §4.E step 2).
type BaselinePolicy string

const (
	BaselineNone            BaselinePolicy = "NONE"
	BaselineOpeningOddsLogit BaselinePolicy = "OPENING_ODDS_LOGIT"
)

// NaNPolicy controls whether a numeric feature may be NaN at inference time.
type NaNPolicy string

const (
	NaNPolicyFail NaNPolicy = "fail"
	NaNPolicyKeep NaNPolicy = "keep"
)

// NumericPreprocess holds the standardization stats for one numeric feature.
type NumericPreprocess struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	NaN  NaNPolicy `json:"nan_policy"`
}

// Preprocess is the artifact's self-describing feature-preparation
// parameters: the design-matrix builder needs no side channel beyond this.
type Preprocess struct {
	Numeric map[string]NumericPreprocess `json:"numeric"`
}

// LogRegWeights holds a fitted logistic-regression weight vector.
type LogRegWeights struct {
	W []float64 `json:"w"`
	B float64   `json:"b"`
}

// ErrArtifactLoad is returned by Load with a message naming the missing or
// malformed manifest field (spec.md §6.2, §7 ArtifactLoadError).
type ErrArtifactLoad struct {
	Field string
	Cause error
}

func (e *ErrArtifactLoad) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("artifact load: field %q: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("artifact load: field %q is missing or invalid", e.Field)
}

func (e *ErrArtifactLoad) Unwrap() error { return e.Cause }

// manifest mirrors the on-disk JSON shape from spec.md §6.2.
type manifest struct {
	Version        string          `json:"version"`
	ModelKind      string          `json:"model_kind"`
	FeatureSchema  []string        `json:"feature_schema"`
	Preprocess     Preprocess      `json:"preprocess"`
	Calibrator     calibratorJSON  `json:"calibrator"`
	BaselinePolicy string          `json:"baseline_policy"`
	Weights        *LogRegWeights  `json:"weights,omitempty"`
	TreeBlobPath   string          `json:"tree_blob_path,omitempty"`
}

type calibratorJSON struct {
	Kind  string    `json:"kind"`
	Alpha float64   `json:"alpha,omitempty"`
	Beta  float64   `json:"beta,omitempty"`
	Xs    []float64 `json:"xs,omitempty"`
	Ys    []float64 `json:"ys,omitempty"`
}

// TreeEnsemble is the opaque GBT prediction surface. Loading the ensemble
// weight blob is intentionally left to the caller-supplied loader function
// (GBTBlobLoader) since the wire format for the tree blob is an external
// concern (spec.md §1 scope: "we consume, not produce, the artifact").
type TreeEnsemble interface {
	// RawMargin returns the ensemble's raw margin (pre-sigmoid) for each
	// row of X, a len(rows) x len(FeatureSchema) matrix in schema order.
	RawMargin(x [][]float64) ([]float64, error)
}

// GBTBlobLoader parses a tree-blob file on first use.
type GBTBlobLoader func(path string) (TreeEnsemble, error)

// Artifact is the immutable, process-wide-shared representation of a
// trained win-probability model (spec.md §3.1). It is never mutated after
// Load returns. The GBT tree blob, if any, is loaded lazily behind a
// sync.Once the first time Tree() is called, and held for the process
// lifetime — this is a mandatory invariant per spec.md §9 ("Prior
// implementations that reloaded per call degraded throughput by orders of
// magnitude").
type Artifact struct {
	Version        string
	ModelKind      Kind
	FeatureSchema  []string
	Preprocess     Preprocess
	Calibrator     calibration.Calibrator
	BaselinePolicy BaselinePolicy
	Weights        *LogRegWeights

	blobPath   string
	blobLoader GBTBlobLoader
	treeOnce   sync.Once
	tree       TreeEnsemble
	treeErr    error
}

// Load reads a JSON manifest (and, for GBT artifacts, prepares lazy loading
// of the sibling tree blob named by tree_blob_path, relative to manifestPath)
// into an immutable Artifact.
func Load(manifestPath string, blobLoader GBTBlobLoader) (*Artifact, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ErrArtifactLoad{Field: "manifest", Cause: err}
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ErrArtifactLoad{Field: "manifest", Cause: err}
	}

	if m.Version == "" {
		return nil, &ErrArtifactLoad{Field: "version"}
	}

	kind := Kind(m.ModelKind)
	switch kind {
	case KindLogReg, KindGBT:
	default:
		return nil, &ErrArtifactLoad{Field: "model_kind", Cause: fmt.Errorf("unrecognized kind %q", m.ModelKind)}
	}

	if len(m.FeatureSchema) == 0 {
		return nil, &ErrArtifactLoad{Field: "feature_schema"}
	}

	cal, err := buildCalibrator(m.Calibrator)
	if err != nil {
		return nil, &ErrArtifactLoad{Field: "calibrator", Cause: err}
	}

	policy := BaselinePolicy(m.BaselinePolicy)
	if m.BaselinePolicy == "" {
		policy = BaselineNone
	}
	switch policy {
	case BaselineNone, BaselineOpeningOddsLogit:
	default:
		return nil, &ErrArtifactLoad{Field: "baseline_policy", Cause: fmt.Errorf("unrecognized policy %q", m.BaselinePolicy)}
	}

	a := &Artifact{
		Version:        m.Version,
		ModelKind:      kind,
		FeatureSchema:  m.FeatureSchema,
		Preprocess:     m.Preprocess,
		Calibrator:     cal,
		BaselinePolicy: policy,
		Weights:        m.Weights,
		blobLoader:     blobLoader,
	}

	if kind == KindLogReg {
		if m.Weights == nil || len(m.Weights.W) != len(m.FeatureSchema) {
			return nil, &ErrArtifactLoad{Field: "weights", Cause: fmt.Errorf("LOGREG artifact requires a weight vector matching feature_schema length")}
		}
	}

	if kind == KindGBT {
		if m.TreeBlobPath == "" {
			return nil, &ErrArtifactLoad{Field: "tree_blob_path"}
		}
		dir := filepath.Dir(manifestPath)
		a.blobPath = filepath.Join(dir, m.TreeBlobPath)
	}

	return a, nil
}

func buildCalibrator(c calibratorJSON) (calibration.Calibrator, error) {
	switch c.Kind {
	case "", "NONE":
		return calibration.NewNone(), nil
	case "PLATT":
		return calibration.NewPlatt(c.Alpha, c.Beta), nil
	case "ISOTONIC":
		return calibration.NewIsotonic(c.Xs, c.Ys)
	default:
		return calibration.Calibrator{}, fmt.Errorf("unrecognized calibrator kind %q", c.Kind)
	}
}

// Tree returns the lazily-loaded GBT ensemble, parsing the blob file under a
// one-shot guard on first call. Returns an error if this artifact is not a
// GBT artifact or the blob fails to parse.
func (a *Artifact) Tree() (TreeEnsemble, error) {
	if a.ModelKind != KindGBT {
		return nil, fmt.Errorf("artifact %s is not a GBT model", a.Version)
	}
	a.treeOnce.Do(func() {
		if a.blobLoader == nil {
			a.treeErr = fmt.Errorf("no GBT blob loader configured for artifact %s", a.Version)
			return
		}
		a.tree, a.treeErr = a.blobLoader(a.blobPath)
	})
	return a.tree, a.treeErr
}
