// Package execution implements the Kalshi-style fee and execution-price
// model: bid/ask selection by trade direction, risk-neutral contract
// sizing, the quadratic fee formula, optional slippage and fee rounding,
// and gross/net P&L (spec.md §4.G).
package execution

import "math"

// FeeRounding selects how the per-side fee is rounded after computation.
type FeeRounding string

const (
	FeeRoundingNone       FeeRounding = "none"
	FeeRoundingCeilToCent FeeRounding = "ceil_to_cent"
)

// Costs bundles the cost-model knobs recognized by the grid-search CLI
// (spec.md §6.3 "Costs").
type Costs struct {
	EnableFees   bool        `yaml:"enable_fees"`
	SlippageRate float64     `yaml:"slippage_rate"`
	BetAmount    float64     `yaml:"bet_amount"`
	FeeRounding  FeeRounding `yaml:"fee_rounding"`
}

// DefaultCosts mirrors the spec's stated CLI defaults.
func DefaultCosts() Costs {
	return Costs{
		EnableFees:  true,
		BetAmount:   20,
		FeeRounding: FeeRoundingNone,
	}
}

const feeRate = 0.07

// Fee returns the Kalshi-style per-side fee: 0.07 * p * (1-p) * bet_amount,
// clamped to 0 when p is outside (0,1) or bet_amount is non-positive
// (spec.md §4.G). Symmetric around p=0.5 by construction: fee(p) == fee(1-p).
func Fee(p, betAmount float64, rounding FeeRounding) float64 {
	if p <= 0 || p >= 1 || betAmount <= 0 {
		return 0
	}
	fee := feeRate * p * (1 - p) * betAmount
	return round(fee, rounding)
}

func round(fee float64, rounding FeeRounding) float64 {
	if rounding == FeeRoundingCeilToCent {
		return math.Ceil(fee*100) / 100
	}
	return fee
}

// NumContracts implements risk-neutral sizing: bet_amount / max(p, 1-p), so
// the maximum possible loss on the position equals bet_amount (spec.md §4.G).
func NumContracts(pExec, betAmount float64) float64 {
	denom := pExec
	if 1-pExec > denom {
		denom = 1 - pExec
	}
	return betAmount / denom
}

// Slippage returns the per-side slippage cost, zero when disabled.
func Slippage(costs Costs) float64 {
	if costs.SlippageRate <= 0 {
		return 0
	}
	return costs.SlippageRate * costs.BetAmount
}

// EntryExecPrice returns the execution price for opening a position:
// LONG_HOME buys at ask, SHORT_HOME sells at bid (spec.md §4.G).
func EntryExecPrice(isLong bool, bid, ask float64) float64 {
	if isLong {
		return ask
	}
	return bid
}

// ExitExecPrice returns the execution price for closing a position — the
// opposite side from entry.
func ExitExecPrice(isLong bool, bid, ask float64) float64 {
	if isLong {
		return bid
	}
	return ask
}

// PnL holds the components of one trade's fee and profit accounting.
type PnL struct {
	NumContracts float64
	EntryFee     float64
	ExitFee      float64
	SlippageCost float64
	GrossPnL     float64
	NetPnL       float64
}

// Settle computes the full fee/P&L breakdown for one closed trade.
// isLong selects LONG_HOME (true) vs SHORT_HOME (false) sign conventions.
func Settle(isLong bool, pEntry, pExit float64, costs Costs) PnL {
	numContracts := NumContracts(pEntry, costs.BetAmount)

	var gross float64
	if isLong {
		gross = (pExit - pEntry) * numContracts
	} else {
		gross = (pEntry - pExit) * numContracts
	}

	var entryFee, exitFee, slippageTotal float64
	if costs.EnableFees {
		entryFee = Fee(pEntry, costs.BetAmount, costs.FeeRounding)
		exitFee = Fee(pExit, costs.BetAmount, costs.FeeRounding)
	}
	if costs.SlippageRate > 0 {
		slippageTotal = 2 * Slippage(costs) // one slippage charge per side
	}

	net := gross - entryFee - exitFee - slippageTotal

	return PnL{
		NumContracts: numContracts,
		EntryFee:     entryFee,
		ExitFee:      exitFee,
		SlippageCost: slippageTotal,
		GrossPnL:     gross,
		NetPnL:       net,
	}
}
