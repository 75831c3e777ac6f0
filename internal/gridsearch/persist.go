package gridsearch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Persist writes the split id lists, per-split CSV/JSON result files, and
// the final selection to <outputDir> (spec.md §6.4 "Persisted state
// layout"). Files are written directly into outputDir as given: this
// function neither computes a cache key nor adds a cache-key subdirectory,
// so a later run with the same outputDir overwrites these files.
func Persist(outputDir string, result Result) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("gridsearch: creating output dir: %w", err)
	}

	if err := writeGameList(filepath.Join(outputDir, "train_games.json"), result.TrainGames); err != nil {
		return err
	}
	if err := writeGameList(filepath.Join(outputDir, "valid_games.json"), result.ValidGames); err != nil {
		return err
	}
	if err := writeGameList(filepath.Join(outputDir, "test_games.json"), result.TestGames); err != nil {
		return err
	}

	for _, split := range []SplitName{SplitTrain, SplitValid, SplitTest} {
		if err := writeSplitResults(outputDir, split, result.Combinations); err != nil {
			return err
		}
	}

	if result.Selection != nil {
		raw, err := json.MarshalIndent(result.Selection, "", "  ")
		if err != nil {
			return fmt.Errorf("gridsearch: marshaling final selection: %w", err)
		}
		if err := os.WriteFile(filepath.Join(outputDir, "final_selection.json"), raw, 0644); err != nil {
			return fmt.Errorf("gridsearch: writing final selection: %w", err)
		}
	}

	return nil
}

func writeGameList(path string, games []string) error {
	if games == nil {
		games = []string{}
	}
	raw, err := json.MarshalIndent(games, "", "  ")
	if err != nil {
		return fmt.Errorf("gridsearch: marshaling game list: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("gridsearch: writing game list %s: %w", path, err)
	}
	return nil
}

func writeSplitResults(outputDir string, split SplitName, combos []CombinationResult) error {
	type row struct {
		Entry        float64
		Exit         float64
		SplitMetrics
	}
	rows := make([]row, 0, len(combos))
	for _, c := range combos {
		m, ok := c.Splits[split]
		if !ok {
			continue
		}
		rows = append(rows, row{Entry: c.Entry, Exit: c.Exit, SplitMetrics: m})
	}

	jsonPath := filepath.Join(outputDir, fmt.Sprintf("grid_results_%s.json", split))
	raw, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("gridsearch: marshaling %s results: %w", split, err)
	}
	if err := os.WriteFile(jsonPath, raw, 0644); err != nil {
		return fmt.Errorf("gridsearch: writing %s json: %w", split, err)
	}

	csvPath := filepath.Join(outputDir, fmt.Sprintf("grid_results_%s.csv", split))
	f, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("gridsearch: creating %s csv: %w", split, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"entry", "exit", "num_games", "num_trades", "win_rate", "gross_pnl", "net_pnl", "profit_factor", "max_drawdown", "total_fees", "avg_hold_seconds", "is_valid"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("gridsearch: writing %s csv header: %w", split, err)
	}
	for _, r := range rows {
		record := []string{
			strconv.FormatFloat(r.Entry, 'f', -1, 64),
			strconv.FormatFloat(r.Exit, 'f', -1, 64),
			strconv.Itoa(r.NumGames),
			strconv.Itoa(r.NumTrades),
			strconv.FormatFloat(r.WinRate, 'f', -1, 64),
			strconv.FormatFloat(r.GrossPnL, 'f', -1, 64),
			strconv.FormatFloat(r.NetPnL, 'f', -1, 64),
			strconv.FormatFloat(r.ProfitFactor, 'f', -1, 64),
			strconv.FormatFloat(r.MaxDrawdown, 'f', -1, 64),
			strconv.FormatFloat(r.TotalFees, 'f', -1, 64),
			strconv.FormatFloat(r.AvgHoldSeconds, 'f', -1, 64),
			strconv.FormatBool(r.IsValid),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("gridsearch: writing %s csv row: %w", split, err)
		}
	}

	return nil
}
