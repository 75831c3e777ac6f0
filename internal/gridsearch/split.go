package gridsearch

import (
	"math/rand"
	"sort"
)

// SplitName identifies one of the three deterministic game-id partitions.
type SplitName string

const (
	SplitTrain SplitName = "train"
	SplitValid SplitName = "valid"
	SplitTest  SplitName = "test"
)

// SplitConfig bounds the train/valid/test split (spec.md §6.3 "Splits").
type SplitConfig struct {
	TrainRatio float64 `yaml:"train_ratio"`
	ValidRatio float64 `yaml:"valid_ratio"`
	TestRatio  float64 `yaml:"test_ratio"`
	Seed       int64   `yaml:"seed"`
}

// DefaultSplitConfig mirrors the spec's stated defaults.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{TrainRatio: 0.70, ValidRatio: 0.15, TestRatio: 0.15, Seed: 42}
}

const ratioTolerance = 1e-6

// Split deterministically shuffles gameIDs by seed and partitions them into
// train/valid/test at the configured ratios (spec.md §4.J "Splitting").
// The three returned sets are pairwise disjoint and their union equals
// gameIDs exactly (spec.md §8 property 9).
func Split(gameIDs []string, cfg SplitConfig) (train, valid, test []string, err error) {
	sum := cfg.TrainRatio + cfg.ValidRatio + cfg.TestRatio
	if sum < 1-ratioTolerance || sum > 1+ratioTolerance {
		return nil, nil, nil, &InvalidArgumentsError{Reason: "train/valid/test ratios must sum to 1.0"}
	}
	if cfg.TrainRatio < 0 || cfg.ValidRatio < 0 || cfg.TestRatio < 0 {
		return nil, nil, nil, &InvalidArgumentsError{Reason: "split ratios must be non-negative"}
	}

	ids := make([]string, len(gameIDs))
	copy(ids, gameIDs)
	sort.Strings(ids) // canonicalize input order before the seeded shuffle

	r := rand.New(rand.NewSource(cfg.Seed))
	r.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	n := len(ids)
	nTrain := int(float64(n) * cfg.TrainRatio)
	nValid := int(float64(n) * cfg.ValidRatio)

	train = append([]string{}, ids[:nTrain]...)
	valid = append([]string{}, ids[nTrain:nTrain+nValid]...)
	test = append([]string{}, ids[nTrain+nValid:]...)
	return train, valid, test, nil
}
