// Package timeline maps one game's ordered SnapshotRows onto a normalized
// game-clock timeline and matches market observations onto it (spec.md
// §4.F). The aligner is a pure function of its inputs: no I/O, no shared
// state, safe to call concurrently across games.
package timeline

import (
	"sort"
	"time"

	"github.com/sawpanic/hoopdivergence/internal/domain"
)

// GameStartAnchor selects which timestamp anchors game_time_seconds = 0.
// FirstSnapshot is the spec default; ScoreboardKickoff is reserved for a
// future data source that supplies a scoreboard-provided kickoff instant
// (spec.md §4.F step 1, §9 Open Question "game-start anchor").
type GameStartAnchor string

const (
	FirstSnapshot     GameStartAnchor = "FirstSnapshot"
	ScoreboardKickoff GameStartAnchor = "ScoreboardKickoff"
)

// Config holds the aligner's tunable parameters (spec.md §4.F, §6.3).
type Config struct {
	MatchWindowSeconds  float64
	ExcludeFirstSeconds float64
	ExcludeLastSeconds  float64
	MinAlignedSnapshots int
	IncludeOvertime     bool
	GameStartAnchor     GameStartAnchor
}

// DefaultConfig mirrors the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MatchWindowSeconds:  60,
		ExcludeFirstSeconds: 0,
		ExcludeLastSeconds:  0,
		MinAlignedSnapshots: 2,
		IncludeOvertime:     false,
		GameStartAnchor:     FirstSnapshot,
	}
}

// MarketObservation is one timestamped market quote on the raw wall-clock
// timeline, prior to alignment (spec.md §4.F "market-trade or candlestick
// stream").
type MarketObservation struct {
	TS        time.Time
	HomeBid   float64
	HomeAsk   float64
	HomeMid   float64
	HomeSpread float64
	AwayBid   float64
	AwayAsk   float64
	AwayMid   float64
	AwaySpread float64
}

// Result is the aligner's output for one game.
type Result struct {
	Points      []domain.AlignedPoint
	Diagnostics domain.GameDiagnostics
}

// Align runs the full §4.F procedure for one game's snapshots (already
// sorted by sequence_number by the caller) and an optional market stream.
// rows must belong to a single game_id; Align does not validate that.
func Align(rows []domain.SnapshotRow, market []MarketObservation, cfg Config) Result {
	diag := domain.GameDiagnostics{SnapshotsTotal: len(rows)}

	if len(rows) == 0 {
		diag.SkipReason = domain.SkipTooFewSnapshots
		return Result{Diagnostics: diag}
	}

	firstTS := rows[0].SnapshotTS
	lastTS := rows[len(rows)-1].SnapshotTS
	gameStart := firstTS // FirstSnapshot is the only anchor implemented today.
	gameEndSeconds := lastTS.Sub(firstTS).Seconds()

	sortedMarket := make([]MarketObservation, len(market))
	copy(sortedMarket, market)
	sort.Slice(sortedMarket, func(i, j int) bool { return sortedMarket[i].TS.Before(sortedMarket[j].TS) })

	points := make([]domain.AlignedPoint, 0, len(rows))
	marketCovered := 0
	otExcluded := 0

	for _, row := range rows {
		if !cfg.IncludeOvertime && row.Period > 4 {
			otExcluded++
			continue
		}

		gameTimeSeconds := row.SnapshotTS.Sub(firstTS).Seconds()
		wallTSAligned := gameStart.Add(row.SnapshotTS.Sub(firstTS))

		if gameTimeSeconds < cfg.ExcludeFirstSeconds {
			continue
		}
		if gameTimeSeconds > gameEndSeconds-cfg.ExcludeLastSeconds {
			continue
		}

		point := domain.AlignedPoint{
			SnapshotRow:     row,
			GameTimeSeconds: gameTimeSeconds,
			WallTSAligned:   wallTSAligned,
		}

		if m, ok := matchMarket(sortedMarket, wallTSAligned, cfg.MatchWindowSeconds); ok {
			point.MarketAvailable = true
			point.MarketHomeBid = m.HomeBid
			point.MarketHomeAsk = m.HomeAsk
			point.MarketHomeMid = m.HomeMid
			point.MarketHomeSpread = m.HomeSpread
			point.MarketAwayBid = m.AwayBid
			point.MarketAwayAsk = m.AwayAsk
			point.MarketAwayMid = m.AwayMid
			point.MarketAwaySpread = m.AwaySpread
			marketCovered++
		} else {
			point.MarketAvailable = false
		}

		points = append(points, point)
	}

	diag.SnapshotsAligned = len(points)
	diag.OvertimeExcluded = otExcluded
	if len(points) > 0 {
		diag.MarketCoveragePct = float64(marketCovered) / float64(len(points))
	}

	if marketCovered == 0 {
		diag.SkipReason = domain.SkipNoMarketCoverage
		return Result{Diagnostics: diag}
	}
	if marketCoveredCount(points) < cfg.MinAlignedSnapshots {
		diag.SkipReason = domain.SkipTooFewSnapshots
		return Result{Diagnostics: diag}
	}

	return Result{Points: points, Diagnostics: diag}
}

func marketCoveredCount(points []domain.AlignedPoint) int {
	n := 0
	for _, p := range points {
		if p.MarketAvailable {
			n++
		}
	}
	return n
}

// matchMarket finds the market observation closest to target within
// ±windowSeconds, preferring the later timestamp on ties (spec.md §4.F
// step 3). sortedMarket must be sorted ascending by TS.
func matchMarket(sortedMarket []MarketObservation, target time.Time, windowSeconds float64) (MarketObservation, bool) {
	if len(sortedMarket) == 0 {
		return MarketObservation{}, false
	}

	// First index with TS >= target.
	idx := sort.Search(len(sortedMarket), func(i int) bool {
		return !sortedMarket[i].TS.Before(target)
	})

	var best MarketObservation
	bestDist := windowSeconds + 1
	found := false

	consider := func(i int) {
		if i < 0 || i >= len(sortedMarket) {
			return
		}
		d := sortedMarket[i].TS.Sub(target).Seconds()
		if d < 0 {
			d = -d
		}
		if d > windowSeconds {
			return
		}
		if !found || d < bestDist || (d == bestDist && sortedMarket[i].TS.After(best.TS)) {
			best = sortedMarket[i]
			bestDist = d
			found = true
		}
	}

	consider(idx)
	consider(idx - 1)

	return best, found
}
