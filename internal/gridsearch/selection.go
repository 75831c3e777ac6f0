package gridsearch

import "sort"

// FinalSelection records the chosen combination and its metrics on every
// split, plus the method used to select it (spec.md §4.J "Selection").
type FinalSelection struct {
	Combination Combination  `json:"combination"`
	Train       SplitMetrics `json:"train"`
	Valid       SplitMetrics `json:"valid"`
	Test        SplitMetrics `json:"test"`
	Method      string       `json:"method"`
}

// Select ranks valid combinations by train net P&L descending, restricts
// to the top N, and chooses the one with the highest validation net P&L
// among those (spec.md §4.J "Selection", §8 property 10).
func Select(results []CombinationResult, topN, minTradeCount int) (*FinalSelection, error) {
	valid := make([]CombinationResult, 0, len(results))
	for _, r := range results {
		train := r.Splits[SplitTrain]
		if train.NumTrades >= minTradeCount {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil, &NoUsableGamesError{}
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Splits[SplitTrain].NetPnL > valid[j].Splits[SplitTrain].NetPnL
	})

	if topN > 0 && topN < len(valid) {
		valid = valid[:topN]
	}

	best := valid[0]
	for _, r := range valid[1:] {
		if r.Splits[SplitValid].NetPnL > best.Splits[SplitValid].NetPnL {
			best = r
		}
	}

	return &FinalSelection{
		Combination: Combination{Entry: best.Entry, Exit: best.Exit},
		Train:       best.Splits[SplitTrain],
		Valid:       best.Splits[SplitValid],
		Method:      "top_n_train_then_max_valid",
	}, nil
}
