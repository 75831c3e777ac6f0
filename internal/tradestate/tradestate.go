// Package tradestate implements the FLAT/LONG_HOME/SHORT_HOME divergence
// trading state machine with hysteresis, minimum hold, and forced
// end-of-game close (spec.md §4.H).
package tradestate

import (
	"math"

	"github.com/sawpanic/hoopdivergence/internal/domain"
	"github.com/sawpanic/hoopdivergence/internal/execution"
)

// Thresholds holds the entry/exit divergence thresholds and hysteresis
// knobs (spec.md §4.H, §6.3).
type Thresholds struct {
	EntryThreshold  float64
	ExitThreshold   float64
	MinHoldSeconds  float64
	ExcludeLastSecs float64 // forced-close boundary relative to game_end_seconds
}

// Validate enforces the spec's constraint 0 < exit < entry.
func (t Thresholds) Validate() error {
	if !(t.ExitThreshold > 0 && t.ExitThreshold < t.EntryThreshold) {
		return errInvalidThresholds
	}
	return nil
}

var errInvalidThresholds = thresholdError{}

type thresholdError struct{}

func (thresholdError) Error() string {
	return "tradestate: thresholds must satisfy 0 < exit_threshold < entry_threshold"
}

// Machine drives one game's sequence of AlignedPoints through the
// FLAT/LONG_HOME/SHORT_HOME state machine, emitting TradeRecords.
type Machine struct {
	thresholds     Thresholds
	costs          execution.Costs
	gameEndSeconds float64

	state         domain.Direction
	entryGameTime float64
	entryPrice    float64
}

// New constructs a Machine for one game. gameEndSeconds is the last aligned
// point's game_time_seconds, used for the forced-close boundary.
func New(thresholds Thresholds, costs execution.Costs, gameEndSeconds float64) *Machine {
	return &Machine{
		thresholds:     thresholds,
		costs:          costs,
		gameEndSeconds: gameEndSeconds,
		state:          domain.DirectionFlat,
	}
}

// Step processes one AlignedPoint with valid market data and returns a
// completed TradeRecord if a position was closed this step. Points without
// market coverage should not be passed to Step by the caller (simulator).
func (m *Machine) Step(gameID string, p domain.AlignedPoint, pModel float64) *domain.TradeRecord {
	divergence := pModel - p.MarketHomeMid
	forcedClose := p.GameTimeSeconds >= m.gameEndSeconds-m.thresholds.ExcludeLastSecs

	if m.state == domain.DirectionFlat {
		if forcedClose {
			return nil
		}
		if divergence > m.thresholds.EntryThreshold {
			m.open(domain.DirectionLongHome, p)
		} else if divergence < -m.thresholds.EntryThreshold {
			m.open(domain.DirectionShortHome, p)
		}
		return nil
	}

	hold := p.GameTimeSeconds - m.entryGameTime
	holdSatisfied := hold >= m.thresholds.MinHoldSeconds
	converged := math.Abs(divergence) <= m.thresholds.ExitThreshold && holdSatisfied
	oppositeSignal := holdSatisfied && isOppositeSignal(m.state, divergence, m.thresholds.EntryThreshold)

	if converged {
		// Do not flip directly into the opposite side this step: stay FLAT
		// and let the next step's entry logic fire (spec.md §4.H step 3).
		return m.close(gameID, p, domain.ExitConverged)
	}
	if forcedClose {
		return m.close(gameID, p, domain.ExitForcedEOG)
	}
	if oppositeSignal {
		// A strong opposite-direction divergence closes the position rather
		// than flipping straight into the opposite side within the same
		// step (spec.md §4.H step 3, "prevents chattering").
		return m.close(gameID, p, domain.ExitOppositeSignalBlocked)
	}
	return nil
}

// isOppositeSignal reports whether divergence has flipped past the entry
// threshold in the direction opposite the currently held position.
func isOppositeSignal(state domain.Direction, divergence, entryThreshold float64) bool {
	switch state {
	case domain.DirectionLongHome:
		return divergence < -entryThreshold
	case domain.DirectionShortHome:
		return divergence > entryThreshold
	default:
		return false
	}
}

// Finish force-closes any still-open position at the final observed point
// (spec.md §4.H step 4). Returns nil if already FLAT.
func (m *Machine) Finish(gameID string, last domain.AlignedPoint) *domain.TradeRecord {
	if m.state == domain.DirectionFlat {
		return nil
	}
	return m.close(gameID, last, domain.ExitForcedEOG)
}

func (m *Machine) open(dir domain.Direction, p domain.AlignedPoint) {
	isLong := dir == domain.DirectionLongHome
	m.entryPrice = execution.EntryExecPrice(isLong, p.MarketHomeBid, p.MarketHomeAsk)
	m.entryGameTime = p.GameTimeSeconds
	m.state = dir
}

func (m *Machine) close(gameID string, p domain.AlignedPoint, reason domain.ExitReason) *domain.TradeRecord {
	isLong := m.state == domain.DirectionLongHome
	exitPrice := execution.ExitExecPrice(isLong, p.MarketHomeBid, p.MarketHomeAsk)

	pnl := execution.Settle(isLong, m.entryPrice, exitPrice, m.costs)

	trade := &domain.TradeRecord{
		GameID:               gameID,
		Direction:            m.state,
		EntryGameTimeSeconds: m.entryGameTime,
		ExitGameTimeSeconds:  p.GameTimeSeconds,
		EntryPrice:           m.entryPrice,
		ExitPrice:            exitPrice,
		BetAmountDollars:     m.costs.BetAmount,
		NumContracts:         pnl.NumContracts,
		EntryFee:             pnl.EntryFee,
		ExitFee:              pnl.ExitFee,
		SlippageCost:         pnl.SlippageCost,
		GrossPnL:             pnl.GrossPnL,
		NetPnL:               pnl.NetPnL,
		ExitReason:           reason,
	}

	m.state = domain.DirectionFlat
	m.entryGameTime = 0
	m.entryPrice = 0
	return trade
}
