package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/hoopdivergence/internal/config"
	"github.com/sawpanic/hoopdivergence/internal/datasource"
	"github.com/sawpanic/hoopdivergence/internal/domain"
	"github.com/sawpanic/hoopdivergence/internal/execution"
	"github.com/sawpanic/hoopdivergence/internal/gridsearch"
	"github.com/sawpanic/hoopdivergence/internal/model"
	"github.com/sawpanic/hoopdivergence/internal/telemetry"
	"github.com/sawpanic/hoopdivergence/internal/timeline"
)

func newGridCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Run a grid search over entry/exit thresholds",
		Long:  "Evaluate the divergence simulator across a 2-D threshold grid with deterministic train/valid/test splits, then select and report a final combination.",
		RunE:  runGrid,
	}

	cmd.Flags().String("config", "", "Path to a YAML config file (flags below override its values)")
	cmd.Flags().String("season", "", "Season label to pull the eligible game universe from")
	cmd.Flags().String("game-list", "", "Comma-separated explicit game id list (overrides --season)")
	cmd.Flags().String("model-name", "", "Path to the model artifact manifest (omit to disable the model)")
	cmd.Flags().String("dsn", "", "Postgres DSN for the data source")

	cmd.Flags().Float64("entry-min", 0.02, "Minimum entry threshold")
	cmd.Flags().Float64("entry-max", 0.10, "Maximum entry threshold")
	cmd.Flags().Float64("entry-step", 0.02, "Entry threshold step")
	cmd.Flags().Float64("exit-min", 0.0, "Minimum exit threshold")
	cmd.Flags().Float64("exit-max", 0.05, "Maximum exit threshold")
	cmd.Flags().Float64("exit-step", 0.01, "Exit threshold step")

	cmd.Flags().Bool("enable-fees", true, "Apply the per-side fee model")
	cmd.Flags().Float64("slippage-rate", 0, "Slippage rate applied per side")
	cmd.Flags().Float64("bet-amount", 20, "Dollar bet amount per trade")
	cmd.Flags().String("fee-rounding", "none", "Fee rounding mode: none|ceil_to_cent")

	cmd.Flags().Float64("exclude-first-seconds", 0, "Exclude snapshots before this many game-clock seconds")
	cmd.Flags().Float64("exclude-last-seconds", 0, "Exclude snapshots within this many seconds of game end")
	cmd.Flags().Float64("match-window-seconds", 60, "Maximum wall-clock gap for a market match")
	cmd.Flags().Float64("min-hold-seconds", 30, "Minimum hold time before a convergence exit is allowed")

	cmd.Flags().Float64("train-ratio", 0.70, "Train split ratio")
	cmd.Flags().Float64("valid-ratio", 0.15, "Validation split ratio")
	cmd.Flags().Float64("test-ratio", 0.15, "Test split ratio")
	cmd.Flags().Int64("seed", 42, "Split shuffle seed")
	cmd.Flags().Int("top-n", 10, "Restrict selection to the top N train performers")
	cmd.Flags().Int("min-trade-count", 200, "Minimum train trade count for a combination to be selectable")

	cmd.Flags().Int("workers", 1, "Parallel worker count across combinations")
	cmd.Flags().Int("max-games", 0, "Cap games per split (0 = unlimited)")
	cmd.Flags().Int("max-combinations", 0, "Cap combinations evaluated (0 = unlimited)")
	cmd.Flags().String("output-dir", "output", "Output directory for persisted results")
	cmd.Flags().Bool("no-cache", false, "Disable the combination-result cache")
	cmd.Flags().String("redis-addr", "", "Redis address for a shared combination-result cache (omit for an in-process cache)")

	return cmd
}

func runGrid(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var artifact *model.Artifact
	if cfg.ModelName != "" {
		artifact, err = model.Load(cfg.ModelName, unsupportedGBTLoader)
		if err != nil {
			return err
		}
		log.Info().Str("version", artifact.Version).Str("kind", string(artifact.ModelKind)).Msg("loaded model artifact")
	}

	ctx := context.Background()

	src, err := datasource.Open(cfg.DataSource)
	if err != nil {
		return err
	}
	defer src.Close()

	gameIDs, err := resolveGameIDs(ctx, src, cfg)
	if err != nil {
		return err
	}

	timelineCfg := timeline.Config{
		MatchWindowSeconds:  cfg.MatchWindowSeconds,
		ExcludeFirstSeconds: cfg.ExcludeFirstSeconds,
		ExcludeLastSeconds:  cfg.ExcludeLastSeconds,
		MinAlignedSnapshots: 2,
		IncludeOvertime:     cfg.IncludeOvertime,
		GameStartAnchor:     timeline.FirstSnapshot,
	}
	provide := newGameProvider(ctx, src, cfg.Season, timelineCfg)

	metrics, _ := telemetry.NewMetricsRegistry()

	var cache gridsearch.Cache = gridsearch.NewMemCache()
	switch {
	case cfg.NoCache:
		cache = gridsearch.NoCache{}
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache = gridsearch.NewRedisCache(client)
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis combination-result cache")
	}

	driverCfg := cfg.GridSearchConfig()
	driverCfg.Artifact = artifact
	driverCfg.Metrics = metrics

	result, err := gridsearch.Run(ctx, gameIDs, provide, cache, driverCfg)
	if err != nil {
		return err
	}

	recordSplitMetrics(metrics, result)

	outputDir := cfg.OutputDir
	if err := gridsearch.Persist(outputDir, result); err != nil {
		return err
	}

	printSummary(result)
	return nil
}

// configFromFlags loads an optional --config file, then applies every
// explicitly-set flag on top of it (flags win over the file, the file wins
// over built-in defaults).
func configFromFlags(cmd *cobra.Command) (config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	applyString := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	applyFloat := func(name string, dst *float64) {
		if flags.Changed(name) {
			*dst, _ = flags.GetFloat64(name)
		}
	}
	applyInt := func(name string, dst *int) {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	applyBool := func(name string, dst *bool) {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}

	applyString("season", &cfg.Season)
	applyString("game-list", &cfg.GameList)
	applyString("model-name", &cfg.ModelName)
	applyString("dsn", &cfg.DataSource.DSN)

	applyFloat("entry-min", &cfg.Grid.EntryMin)
	applyFloat("entry-max", &cfg.Grid.EntryMax)
	applyFloat("entry-step", &cfg.Grid.EntryStep)
	applyFloat("exit-min", &cfg.Grid.ExitMin)
	applyFloat("exit-max", &cfg.Grid.ExitMax)
	applyFloat("exit-step", &cfg.Grid.ExitStep)

	applyBool("enable-fees", &cfg.Costs.EnableFees)
	applyFloat("slippage-rate", &cfg.Costs.SlippageRate)
	applyFloat("bet-amount", &cfg.Costs.BetAmount)
	var feeRounding string
	applyString("fee-rounding", &feeRounding)
	if flags.Changed("fee-rounding") {
		cfg.Costs.FeeRounding = execution.FeeRounding(feeRounding)
	}

	applyFloat("exclude-first-seconds", &cfg.ExcludeFirstSeconds)
	applyFloat("exclude-last-seconds", &cfg.ExcludeLastSeconds)
	applyFloat("match-window-seconds", &cfg.MatchWindowSeconds)
	applyFloat("min-hold-seconds", &cfg.MinHoldSeconds)

	applyFloat("train-ratio", &cfg.Split.TrainRatio)
	applyFloat("valid-ratio", &cfg.Split.ValidRatio)
	applyFloat("test-ratio", &cfg.Split.TestRatio)
	if flags.Changed("seed") {
		seed, _ := flags.GetInt64("seed")
		cfg.Split.Seed = seed
	}
	applyInt("top-n", &cfg.TopN)
	applyInt("min-trade-count", &cfg.MinTradeCount)

	applyInt("workers", &cfg.Workers)
	applyInt("max-games", &cfg.MaxGames)
	applyInt("max-combinations", &cfg.MaxCombinations)
	applyString("output-dir", &cfg.OutputDir)
	applyBool("no-cache", &cfg.NoCache)
	applyString("redis-addr", &cfg.RedisAddr)

	return cfg, nil
}

func resolveGameIDs(ctx context.Context, src *datasource.PostgresSource, cfg config.Config) ([]string, error) {
	if cfg.GameList != "" {
		var ids []string
		for _, id := range strings.Split(cfg.GameList, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				ids = append(ids, id)
			}
		}
		return ids, nil
	}
	return src.ListGameIDs(ctx, cfg.Season)
}

// newGameProvider adapts the data source and aligner into a
// gridsearch.GameProvider, reusing each SnapshotRow's own pre-joined market
// columns as the aligner's market observation stream.
func newGameProvider(ctx context.Context, src *datasource.PostgresSource, season string, timelineCfg timeline.Config) gridsearch.GameProvider {
	return func(gameID string) ([]domain.AlignedPoint, domain.GameDiagnostics, error) {
		rowCh, errCh := src.Iterator(ctx, season, gameID)

		var rows []domain.SnapshotRow
		for row := range rowCh {
			rows = append(rows, row)
		}
		if err := <-errCh; err != nil {
			return nil, domain.GameDiagnostics{}, err
		}

		market := make([]timeline.MarketObservation, 0, len(rows))
		for _, row := range rows {
			if !row.MarketAvailable {
				continue
			}
			market = append(market, timeline.MarketObservation{
				TS:         row.SnapshotTS,
				HomeBid:    row.MarketHomeBid,
				HomeAsk:    row.MarketHomeAsk,
				HomeMid:    row.MarketHomeMid,
				HomeSpread: row.MarketHomeSpread,
				AwayBid:    row.MarketAwayBid,
				AwayAsk:    row.MarketAwayAsk,
				AwayMid:    row.MarketAwayMid,
				AwaySpread: row.MarketAwaySpread,
			})
		}

		result := timeline.Align(rows, market, timelineCfg)
		return result.Points, result.Diagnostics, nil
	}
}

func unsupportedGBTLoader(path string) (model.TreeEnsemble, error) {
	return nil, fmt.Errorf("GBT tree blob loading is not wired in this build: %s", path)
}

func recordSplitMetrics(metrics *telemetry.MetricsRegistry, result gridsearch.Result) {
	if metrics == nil {
		return
	}
	for _, combo := range result.Combinations {
		for split, m := range combo.Splits {
			outcome := "ok"
			if !m.IsValid {
				outcome = "skipped"
			}
			metrics.RecordGameProcessed(string(split), outcome)
		}
	}
}

func printSummary(result gridsearch.Result) {
	fmt.Printf("Evaluated %d combination(s) over %d train / %d valid / %d test games\n",
		len(result.Combinations), len(result.TrainGames), len(result.ValidGames), len(result.TestGames))

	if result.Selection == nil {
		fmt.Println("No final selection was made.")
		return
	}

	sel := result.Selection
	fmt.Printf("Selected entry=%.4f exit=%.4f via %s\n", sel.Combination.Entry, sel.Combination.Exit, sel.Method)
	fmt.Printf("  train net P&L: %.2f (%d trades)\n", sel.Train.NetPnL, sel.Train.NumTrades)
	fmt.Printf("  valid net P&L: %.2f (%d trades)\n", sel.Valid.NetPnL, sel.Valid.NumTrades)
	fmt.Printf("  test  net P&L: %.2f (%d trades)\n", sel.Test.NetPnL, sel.Test.NumTrades)
}
