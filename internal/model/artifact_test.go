package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir string, m manifest) string {
	t.Helper()
	path := filepath.Join(dir, "manifest.json")
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadLogRegArtifact(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, manifest{
		Version:       "v1",
		ModelKind:     "LOGREG",
		FeatureSchema: []string{"a", "b"},
		Preprocess: Preprocess{Numeric: map[string]NumericPreprocess{
			"a": {Mean: 0, Std: 1},
			"b": {Mean: 0, Std: 1},
		}},
		Calibrator:     calibratorJSON{Kind: "NONE"},
		BaselinePolicy: "NONE",
		Weights:        &LogRegWeights{W: []float64{1, 2}, B: 0.5},
	})

	a, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.ModelKind != KindLogReg {
		t.Errorf("ModelKind = %v, want LOGREG", a.ModelKind)
	}
	if len(a.FeatureSchema) != 2 {
		t.Errorf("FeatureSchema length = %d, want 2", len(a.FeatureSchema))
	}
}

func TestLoadRejectsMissingVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, manifest{
		ModelKind:     "LOGREG",
		FeatureSchema: []string{"a"},
		Weights:       &LogRegWeights{W: []float64{1}},
	})
	_, err := Load(path, nil)
	if err == nil {
		t.Fatal("expected ArtifactLoadError for missing version")
	}
}

func TestLoadRejectsWeightSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, manifest{
		Version:       "v1",
		ModelKind:     "LOGREG",
		FeatureSchema: []string{"a", "b"},
		Weights:       &LogRegWeights{W: []float64{1}},
	})
	_, err := Load(path, nil)
	if err == nil {
		t.Fatal("expected ArtifactLoadError for weight/schema length mismatch")
	}
}

type fakeTree struct{ margin float64 }

func (f *fakeTree) RawMargin(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = f.margin
	}
	return out, nil
}

func TestGBTTreeLoadedLazilyOnce(t *testing.T) {
	dir := t.TempDir()
	blobPath := filepath.Join(dir, "tree.bin")
	if err := os.WriteFile(blobPath, []byte("blob"), 0644); err != nil {
		t.Fatal(err)
	}
	path := writeManifest(t, dir, manifest{
		Version:       "v1",
		ModelKind:     "GBT",
		FeatureSchema: []string{"a"},
		TreeBlobPath:  "tree.bin",
	})

	loadCount := 0
	loader := func(p string) (TreeEnsemble, error) {
		loadCount++
		return &fakeTree{margin: 1.5}, nil
	}

	a, err := Load(path, loader)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		tree, err := a.Tree()
		if err != nil {
			t.Fatal(err)
		}
		if tree == nil {
			t.Fatal("expected non-nil tree")
		}
	}

	if loadCount != 1 {
		t.Errorf("blob loader called %d times, want exactly 1 (one-shot guard)", loadCount)
	}
}

func TestLoadRejectsUnknownModelKind(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, manifest{
		Version:       "v1",
		ModelKind:     "SVM",
		FeatureSchema: []string{"a"},
	})
	_, err := Load(path, nil)
	if err == nil {
		t.Fatal("expected error for unrecognized model_kind")
	}
}
