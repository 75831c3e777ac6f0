// Package simulator drives one game's aligned snapshot stream through the
// predictor and trade state machine, producing a GameResult (spec.md §4.I).
package simulator

import (
	"math"

	"github.com/sawpanic/hoopdivergence/internal/domain"
	"github.com/sawpanic/hoopdivergence/internal/execution"
	"github.com/sawpanic/hoopdivergence/internal/model"
	"github.com/sawpanic/hoopdivergence/internal/predictor"
	"github.com/sawpanic/hoopdivergence/internal/tradestate"
)

// Run simulates one game: batches prediction over every aligned point,
// drives the trade state machine across points with market coverage, and
// aggregates per-game metrics. Points without market coverage are skipped
// by the state machine (spec.md §4.F step 3 "the snapshot may still be
// skipped in the trading state machine") but still count toward diagnostics.
func Run(gameID string, points []domain.AlignedPoint, diag domain.GameDiagnostics, artifact *model.Artifact, thresholds tradestate.Thresholds, costs execution.Costs) domain.GameResult {
	if len(points) == 0 {
		return domain.GameResult{GameID: gameID, Diagnostics: diag}
	}

	rows := make([]domain.SnapshotRow, len(points))
	for i, p := range points {
		rows[i] = p.SnapshotRow
	}

	pModel, err := predictor.Predict(artifact, rows)
	if err != nil {
		return domain.GameResult{GameID: gameID, Diagnostics: diag, Err: err}
	}

	gameEndSeconds := points[len(points)-1].GameTimeSeconds
	machine := tradestate.New(thresholds, costs, gameEndSeconds)

	var trades []domain.TradeRecord
	var lastCovered *domain.AlignedPoint

	for i, p := range points {
		if !p.MarketAvailable {
			continue
		}
		lastCovered = &points[i]
		if trade := machine.Step(gameID, p, pModel[i]); trade != nil {
			trades = append(trades, *trade)
		}
	}

	if lastCovered != nil {
		if trade := machine.Finish(gameID, *lastCovered); trade != nil {
			trades = append(trades, *trade)
		}
	}

	return domain.GameResult{
		GameID:      gameID,
		Trades:      trades,
		Metrics:     aggregateMetrics(trades),
		Diagnostics: diag,
	}
}

// aggregateMetrics computes the per-game summary statistics from a
// completed game's trade list (spec.md §4.I).
func aggregateMetrics(trades []domain.TradeRecord) domain.GameMetrics {
	m := domain.GameMetrics{TradeCount: len(trades)}
	if len(trades) == 0 {
		return m
	}

	var grossWins, grossLosses, totalHold float64
	equity := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, t := range trades {
		m.GrossPnL += t.GrossPnL
		m.NetPnL += t.NetPnL
		m.TotalFees += t.EntryFee + t.ExitFee
		totalHold += t.ExitGameTimeSeconds - t.EntryGameTimeSeconds

		if t.NetPnL > 0 {
			m.WinCount++
			grossWins += t.NetPnL
		} else {
			grossLosses += -t.NetPnL
		}

		switch t.Direction {
		case domain.DirectionLongHome:
			m.LongCount++
		case domain.DirectionShortHome:
			m.ShortCount++
		}

		equity += t.NetPnL
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}

	m.WinRate = float64(m.WinCount) / float64(m.TradeCount)
	m.AvgHoldSeconds = totalHold / float64(m.TradeCount)
	m.MaxDrawdown = maxDrawdown

	switch {
	case grossLosses == 0 && grossWins == 0:
		m.ProfitFactor = 0
	case grossLosses == 0:
		m.ProfitFactor = math.Inf(1)
	default:
		m.ProfitFactor = grossWins / grossLosses
	}

	return m
}
