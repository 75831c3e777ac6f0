package gridsearch

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/sawpanic/hoopdivergence/internal/domain"
	"github.com/sawpanic/hoopdivergence/internal/execution"
	"github.com/sawpanic/hoopdivergence/internal/model"
	"github.com/sawpanic/hoopdivergence/internal/simulator"
	"github.com/sawpanic/hoopdivergence/internal/telemetry"
	"github.com/sawpanic/hoopdivergence/internal/tradestate"
)

// GameProvider supplies one game's aligned points and diagnostics, already
// produced by the timeline aligner. It is the grid driver's only
// dependency on the data source and aligner, keeping this package free of
// any I/O concerns.
type GameProvider func(gameID string) ([]domain.AlignedPoint, domain.GameDiagnostics, error)

// SplitMetrics is one (combination, split)'s aggregated outcome (spec.md
// §4.J "Aggregation per split per combination").
type SplitMetrics struct {
	NumGames       int     `json:"num_games"`
	NumTrades      int     `json:"num_trades"`
	WinRate        float64 `json:"win_rate"`
	GrossPnL       float64 `json:"gross_pnl"`
	NetPnL         float64 `json:"net_pnl"`
	ProfitFactor   float64 `json:"profit_factor"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	TotalFees      float64 `json:"total_fees"`
	AvgHoldSeconds float64 `json:"avg_hold_seconds"`
	IsValid        bool    `json:"is_valid"`
}

// CombinationResult is one (entry, exit) combination's outcome across all
// three splits.
type CombinationResult struct {
	Entry  float64                    `json:"entry"`
	Exit   float64                    `json:"exit"`
	Splits map[SplitName]SplitMetrics `json:"splits"`
}

// Config bundles everything the driver needs beyond the game provider and
// cache: grid bounds, split bounds, cost model, simulation thresholds'
// shared hold time, and orchestration knobs (spec.md §6.3).
type Config struct {
	Grid             GridConfig
	Split            SplitConfig
	Costs            execution.Costs
	MinHoldSeconds   float64
	ExcludeLastSecs  float64
	Workers          int
	MaxGames         int
	MaxCombinations  int
	MinTradeCount    int
	TopN             int
	Artifact         *model.Artifact
	Metrics          *telemetry.MetricsRegistry
}

// DefaultConfig mirrors the spec's stated CLI defaults for the knobs this
// package owns.
func DefaultConfig() Config {
	return Config{
		Split:         DefaultSplitConfig(),
		Costs:         execution.DefaultCosts(),
		Workers:       1,
		MinTradeCount: 200,
		TopN:          10,
	}
}

// Result is the full output of one grid-search run.
type Result struct {
	Combinations []CombinationResult
	TrainGames   []string
	ValidGames   []string
	TestGames    []string
	Selection    *FinalSelection
}

// Run executes the full grid-search procedure: generate combinations, split
// games, evaluate train+valid for every combination (parallel worker pool
// across combinations), select a winner, and evaluate test once for that
// winner only (spec.md §4.J).
func Run(ctx context.Context, gameIDs []string, provide GameProvider, cache Cache, cfg Config) (Result, error) {
	combos, err := GenerateCombinations(cfg.Grid)
	if err != nil {
		return Result{}, err
	}
	if cfg.MaxCombinations > 0 && len(combos) > cfg.MaxCombinations {
		combos = combos[:cfg.MaxCombinations]
	}

	train, valid, test, err := Split(gameIDs, cfg.Split)
	if err != nil {
		return Result{}, err
	}
	if cfg.MaxGames > 0 {
		train = capGames(train, cfg.MaxGames)
		valid = capGames(valid, cfg.MaxGames)
		test = capGames(test, cfg.MaxGames)
	}

	if len(train) == 0 && len(valid) == 0 && len(test) == 0 {
		return Result{}, &NoUsableGamesError{}
	}

	results := evaluateCombinations(ctx, combos, provide, cache, cfg, map[SplitName][]string{
		SplitTrain: train,
		SplitValid: valid,
	})

	selection, err := Select(results, cfg.TopN, cfg.MinTradeCount)
	if err != nil {
		return Result{Combinations: results, TrainGames: train, ValidGames: valid, TestGames: test}, err
	}

	// Evaluate test exactly once, for the selected combination only.
	testMetrics := evaluateSplit(ctx, selection.Combination, test, provide, cfg)
	testMetrics.IsValid = testMetrics.NumTrades >= cfg.MinTradeCount
	for i := range results {
		if results[i].Entry == selection.Combination.Entry && results[i].Exit == selection.Combination.Exit {
			results[i].Splits[SplitTest] = testMetrics
			selection.Test = testMetrics
			break
		}
	}

	return Result{
		Combinations: results,
		TrainGames:   train,
		ValidGames:   valid,
		TestGames:    test,
		Selection:    selection,
	}, nil
}

// NoUsableGamesError signals an empty eligible game universe, and is also
// returned by Select when no combination meets the minimum train trade count
// (spec.md §6.3 exit code 4).
type NoUsableGamesError struct{}

func (e *NoUsableGamesError) Error() string { return "grid search: no usable games in any split" }

func capGames(games []string, max int) []string {
	if len(games) <= max {
		return games
	}
	out := make([]string, max)
	copy(out, games[:max])
	return out
}

// evaluateCombinations runs every combination's train+valid splits through
// a bounded worker pool, grounded on the teacher's channel+WaitGroup
// goroutine-pool idiom (internal/infrastructure/async/pipeline.go).
func evaluateCombinations(ctx context.Context, combos []Combination, provide GameProvider, cache Cache, cfg Config, splits map[SplitName][]string) []CombinationResult {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan int, len(combos))
	results := make([]CombinationResult, len(combos))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = evaluateCombination(ctx, combos[i], provide, cache, cfg, splits)
			}
		}()
	}
	for i := range combos {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func evaluateCombination(ctx context.Context, combo Combination, provide GameProvider, cache Cache, cfg Config, splits map[SplitName][]string) CombinationResult {
	key := CacheKeyParams{
		Entry:           combo.Entry,
		Exit:            combo.Exit,
		Grid:            cfg.Grid,
		Split:           cfg.Split,
		BetAmount:       cfg.Costs.BetAmount,
		FeesEnabled:     cfg.Costs.EnableFees,
		SlippageRate:    cfg.Costs.SlippageRate,
		FeeRounding:     string(cfg.Costs.FeeRounding),
		ArtifactVersion: artifactVersion(cfg.Artifact),
	}.Key()

	if cache != nil {
		cached, ok, err := cache.Get(ctx, key)
		if cfg.Metrics != nil {
			cfg.Metrics.RecordCacheLookup(ok && err == nil)
		}
		if err == nil && ok {
			return cached
		}
	}

	result := CombinationResult{Entry: combo.Entry, Exit: combo.Exit, Splits: make(map[SplitName]SplitMetrics)}
	for name, games := range splits {
		var timer *telemetry.CombinationTimer
		if cfg.Metrics != nil {
			timer = cfg.Metrics.StartCombinationTimer(string(name))
		}
		m := evaluateSplit(ctx, combo, games, provide, cfg)
		if timer != nil {
			timer.Stop()
		}
		m.IsValid = m.NumTrades >= cfg.MinTradeCount
		result.Splits[name] = m
	}

	if cache != nil {
		_ = cache.Set(ctx, key, result)
	}
	return result
}

func artifactVersion(a *model.Artifact) string {
	if a == nil {
		return ""
	}
	return a.Version
}

// evaluateSplit runs the per-game simulator for every game_id in games
// (ascending order, for deterministic max-drawdown concatenation per
// spec.md §9) and aggregates into one SplitMetrics.
func evaluateSplit(ctx context.Context, combo Combination, games []string, provide GameProvider, cfg Config) SplitMetrics {
	sortedGames := append([]string{}, games...)
	sort.Strings(sortedGames)

	thresholds := tradestate.Thresholds{
		EntryThreshold:  combo.Entry,
		ExitThreshold:   combo.Exit,
		MinHoldSeconds:  cfg.MinHoldSeconds,
		ExcludeLastSecs: cfg.ExcludeLastSecs,
	}

	var allTrades []domain.TradeRecord
	numGames := 0

	for _, gameID := range sortedGames {
		select {
		case <-ctx.Done():
			return SplitMetrics{}
		default:
		}

		points, diag, err := provide(gameID)
		if err != nil {
			continue // per-game error: excluded from aggregation, other games proceed
		}
		if len(points) == 0 {
			continue
		}
		numGames++
		gr := simulator.Run(gameID, points, diag, cfg.Artifact, thresholds, cfg.Costs)
		if gr.Err != nil {
			continue
		}
		allTrades = append(allTrades, gr.Trades...)
	}

	return aggregateSplit(allTrades, numGames)
}

// aggregateSplit sums dollars across games, computes trade-weighted win
// rate, aggregate profit factor, and max drawdown over the concatenated
// equity curve in (already split-sorted) game order (spec.md §4.J
// "Aggregation per split per combination").
func aggregateSplit(trades []domain.TradeRecord, numGames int) SplitMetrics {
	m := SplitMetrics{NumGames: numGames, NumTrades: len(trades)}
	if len(trades) == 0 {
		return m
	}

	var holdSum, winsSum, lossesSum float64
	equity, peak, maxDD := 0.0, 0.0, 0.0
	wins := 0

	for _, t := range trades {
		m.GrossPnL += t.GrossPnL
		m.NetPnL += t.NetPnL
		m.TotalFees += t.EntryFee + t.ExitFee
		holdSum += t.ExitGameTimeSeconds - t.EntryGameTimeSeconds

		if t.NetPnL > 0 {
			wins++
			winsSum += t.NetPnL
		} else {
			lossesSum += -t.NetPnL
		}

		equity += t.NetPnL
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDD {
			maxDD = dd
		}
	}

	m.WinRate = float64(wins) / float64(len(trades))
	m.AvgHoldSeconds = holdSum / float64(len(trades))
	m.MaxDrawdown = maxDD

	switch {
	case lossesSum == 0 && winsSum == 0:
		m.ProfitFactor = 0
	case lossesSum == 0:
		m.ProfitFactor = math.Inf(1)
	default:
		m.ProfitFactor = winsSum / lossesSum
	}

	return m
}
