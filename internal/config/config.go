// Package config loads the grid-search run's YAML configuration, covering
// every flag in spec.md §6.3, with yaml.v2 the way the teacher loads its
// guards configuration (internal/config/guards.go).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/sawpanic/hoopdivergence/internal/apperrors"
	"github.com/sawpanic/hoopdivergence/internal/datasource"
	"github.com/sawpanic/hoopdivergence/internal/execution"
	"github.com/sawpanic/hoopdivergence/internal/gridsearch"
)

// Config is the full set of grid-search run parameters (spec.md §6.3).
type Config struct {
	Season   string `yaml:"season"`
	GameList string `yaml:"game_list"`
	ModelName string `yaml:"model_name"`

	Grid  gridsearch.GridConfig  `yaml:"grid"`
	Costs execution.Costs        `yaml:"costs"`
	Split gridsearch.SplitConfig `yaml:"split"`

	ExcludeFirstSeconds float64 `yaml:"exclude_first_seconds"`
	ExcludeLastSeconds  float64 `yaml:"exclude_last_seconds"`
	MatchWindowSeconds  float64 `yaml:"match_window_seconds"`
	IncludeOvertime     bool    `yaml:"include_overtime"`
	MinHoldSeconds      float64 `yaml:"min_hold_seconds"`

	MinTradeCount int `yaml:"min_trade_count"`
	TopN          int `yaml:"top_n"`

	Workers         int    `yaml:"workers"`
	MaxGames        int    `yaml:"max_games"`
	MaxCombinations int    `yaml:"max_combinations"`
	OutputDir       string `yaml:"output_dir"`
	NoCache         bool   `yaml:"no_cache"`
	RedisAddr       string `yaml:"redis_addr"`

	DataSource datasource.Config `yaml:"data_source"`
}

// Default returns the spec's stated CLI defaults (spec.md §6.3).
func Default() Config {
	return Config{
		Grid:               gridsearch.GridConfig{EntryMin: 0.02, EntryMax: 0.10, EntryStep: 0.02, ExitMin: 0, ExitMax: 0.05, ExitStep: 0.01},
		Costs:              execution.DefaultCosts(),
		Split:              gridsearch.DefaultSplitConfig(),
		MatchWindowSeconds: 60,
		MinHoldSeconds:     30,
		MinTradeCount:      200,
		TopN:               10,
		Workers:            1,
		OutputDir:          "output",
		DataSource:         datasource.DefaultConfig(),
	}
}

// Load reads and parses a YAML config file, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the cross-field constraints spec.md §6.3 requires before
// any work starts (exit code 2, "invalid arguments").
func (c Config) Validate() error {
	if c.Season == "" && c.GameList == "" {
		return &apperrors.InvalidArguments{Reason: "one of --season or --game-list is required"}
	}
	sum := c.Split.TrainRatio + c.Split.ValidRatio + c.Split.TestRatio
	if sum < 1-1e-6 || sum > 1+1e-6 {
		return &apperrors.InvalidArguments{Reason: "train/valid/test ratios must sum to 1.0"}
	}
	if c.Grid.EntryStep <= 0 || c.Grid.ExitStep <= 0 {
		return &apperrors.InvalidArguments{Reason: "entry_step and exit_step must be positive"}
	}
	if c.Costs.FeeRounding != execution.FeeRoundingNone && c.Costs.FeeRounding != execution.FeeRoundingCeilToCent {
		return &apperrors.InvalidArguments{Reason: "fee_rounding must be 'none' or 'ceil_to_cent'"}
	}
	if c.Workers < 0 {
		return &apperrors.InvalidArguments{Reason: "workers must be non-negative"}
	}
	return nil
}

// GridSearchConfig translates the loaded Config into gridsearch.Config.
// Artifact and Metrics are left nil; the caller sets them (a nil Artifact
// disables the model).
func (c Config) GridSearchConfig() gridsearch.Config {
	return gridsearch.Config{
		Grid:            c.Grid,
		Split:           c.Split,
		Costs:           c.Costs,
		MinHoldSeconds:  c.MinHoldSeconds,
		ExcludeLastSecs: c.ExcludeLastSeconds,
		Workers:         c.Workers,
		MaxGames:        c.MaxGames,
		MaxCombinations: c.MaxCombinations,
		MinTradeCount:   c.MinTradeCount,
		TopN:            c.TopN,
	}
}
