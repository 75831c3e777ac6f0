// Package gridsearch enumerates the (entry, exit) threshold grid, splits
// games deterministically by id, evaluates each combination against the
// per-game simulator across train/valid/test, and selects a final
// combination (spec.md §4.J).
package gridsearch

import "fmt"

// Combination is one (entry_threshold, exit_threshold) grid point.
type Combination struct {
	Entry float64
	Exit  float64
}

// GridConfig bounds the grid enumeration (spec.md §6.3 "Grid").
type GridConfig struct {
	EntryMin  float64 `yaml:"entry_min"`
	EntryMax  float64 `yaml:"entry_max"`
	EntryStep float64 `yaml:"entry_step"`
	ExitMin   float64 `yaml:"exit_min"`
	ExitMax   float64 `yaml:"exit_max"`
	ExitStep  float64 `yaml:"exit_step"`
}

// InvalidArgumentsError reports a grid or split parameter that violates a
// spec constraint (spec.md §7 InvalidArguments); fatal to the driver before
// any work starts.
type InvalidArgumentsError struct {
	Reason string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments: %s", e.Reason)
}

// GenerateCombinations enumerates entry in [EntryMin, EntryMax] step
// EntryStep, exit in [ExitMin, ExitMax] step ExitStep, filtered to
// entry > 0, exit >= 0, exit < entry (spec.md §4.J "Grid generation").
// The actual combination count is whatever survives the filter; callers
// must not assume a closed-form count.
func GenerateCombinations(cfg GridConfig) ([]Combination, error) {
	if cfg.EntryStep <= 0 || cfg.ExitStep <= 0 {
		return nil, &InvalidArgumentsError{Reason: "entry_step and exit_step must be positive"}
	}
	if cfg.EntryMax < cfg.EntryMin || cfg.ExitMax < cfg.ExitMin {
		return nil, &InvalidArgumentsError{Reason: "grid max must be >= min for both entry and exit"}
	}

	var out []Combination
	const epsilon = 1e-9
	for entry := cfg.EntryMin; entry <= cfg.EntryMax+epsilon; entry += cfg.EntryStep {
		if entry <= 0 {
			continue
		}
		for exit := cfg.ExitMin; exit <= cfg.ExitMax+epsilon; exit += cfg.ExitStep {
			if exit < 0 || exit >= entry {
				continue
			}
			out = append(out, Combination{Entry: round9(entry), Exit: round9(exit)})
		}
	}
	return out, nil
}

// round9 tames floating-point step accumulation so repeated GenerateCombinations
// calls produce bit-identical combination lists (spec.md §8 property 8).
func round9(x float64) float64 {
	const scale = 1e9
	return float64(int64(x*scale+0.5)) / scale
}
