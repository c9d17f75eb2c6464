// Package screener filters a candidate symbol universe through a fixed five
// stage funnel and scores the survivors. Screening is stateless; callers run
// it concurrently per batch without shared state.
package screener

import (
	"math"
	"sort"

	"tradesignal/internal/config"
	"tradesignal/internal/features"
)

// Candidate pairs a symbol with its extracted features. Err marks symbols
// whose data fetch or extraction failed; those fall out at the first stage.
type Candidate struct {
	Symbol   string
	Features *features.FeatureSet
	Err      error
}

type ScoredSymbol struct {
	Symbol       string  `json:"symbol"`
	Score        float64 `json:"score"`
	AvgDollarVol float64 `json:"avg_dollar_vol"`
	MomentumPct  float64 `json:"momentum_pct"`
	ATRPct       float64 `json:"atr_pct"`
	SpreadBps    float64 `json:"spread_bps"`
}

// Funnel counts always sum to the input size.
type Funnel struct {
	UniverseSize    int `json:"universe_size"`
	FailedData      int `json:"failed_data"`
	FailedLiquidity int `json:"failed_liquidity"`
	FailedMomentum  int `json:"failed_momentum"`
	FailedVol       int `json:"failed_volatility"`
	FailedMicro     int `json:"failed_microstructure"`
	BelowThreshold  int `json:"below_threshold"`
	Passed          int `json:"passed"`
}

type Result struct {
	Funnel Funnel
	Scored []ScoredSymbol
	// Errors annotates skipped symbols; per-symbol failures never abort
	// the batch.
	Errors map[string]string
}

// Screen runs the five stages in fixed order: data availability, liquidity,
// momentum band, volatility band, microstructure floor. An all-fail universe
// yields an empty result, not an error.
func Screen(cands []Candidate, cfg config.ScreenerConfig) Result {
	res := Result{
		Funnel: Funnel{UniverseSize: len(cands)},
		Errors: map[string]string{},
	}

	survivors := make([]*features.FeatureSet, 0, len(cands))
	for _, c := range cands {
		if c.Err != nil || c.Features == nil {
			res.Funnel.FailedData++
			if c.Err != nil {
				res.Errors[c.Symbol] = c.Err.Error()
			} else {
				res.Errors[c.Symbol] = "no features"
			}
			continue
		}
		survivors = append(survivors, c.Features)
	}

	next := survivors[:0]
	for _, f := range survivors {
		if f.AvgDollarVol < cfg.MinAvgDollarVolume {
			res.Funnel.FailedLiquidity++
			continue
		}
		next = append(next, f)
	}
	survivors = next

	next = survivors[:0]
	for _, f := range survivors {
		if f.MomentumPct < cfg.MinMomentumPct || f.MomentumPct > cfg.MaxMomentumPct {
			res.Funnel.FailedMomentum++
			continue
		}
		next = append(next, f)
	}
	survivors = next

	next = survivors[:0]
	for _, f := range survivors {
		if f.ATRPct < cfg.MinATRPct || f.ATRPct > cfg.MaxATRPct {
			res.Funnel.FailedVol++
			continue
		}
		next = append(next, f)
	}
	survivors = next

	next = survivors[:0]
	for _, f := range survivors {
		if !f.HasQuote || f.SpreadBps > cfg.MaxSpreadBps || math.Abs(f.DepthImbalance) > cfg.MaxDepthImbalance {
			res.Funnel.FailedMicro++
			continue
		}
		next = append(next, f)
	}
	survivors = next

	scored := make([]ScoredSymbol, 0, len(survivors))
	for _, f := range survivors {
		score := compositeScore(f, cfg)
		if score < cfg.QualityThreshold {
			res.Funnel.BelowThreshold++
			continue
		}
		scored = append(scored, ScoredSymbol{
			Symbol:       f.Symbol,
			Score:        score,
			AvgDollarVol: f.AvgDollarVol,
			MomentumPct:  f.MomentumPct,
			ATRPct:       f.ATRPct,
			SpreadBps:    f.SpreadBps,
		})
	}

	// Deterministic ordering: score desc, liquidity desc, then symbol.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].AvgDollarVol != scored[j].AvgDollarVol {
			return scored[i].AvgDollarVol > scored[j].AvgDollarVol
		}
		return scored[i].Symbol < scored[j].Symbol
	})

	res.Funnel.Passed = len(scored)
	res.Scored = scored
	return res
}

func compositeScore(f *features.FeatureSet, cfg config.ScreenerConfig) float64 {
	liq := clamp01(f.AvgDollarVol / (cfg.MinAvgDollarVolume * 10))

	// Momentum and volatility score highest at band center.
	mom := bandScore(f.MomentumPct, cfg.MinMomentumPct, cfg.MaxMomentumPct)
	vol := bandScore(f.ATRPct, cfg.MinATRPct, cfg.MaxATRPct)

	exec := 0.0
	if cfg.MaxSpreadBps > 0 {
		exec = clamp01(1 - f.SpreadBps/cfg.MaxSpreadBps)
	}

	totalW := cfg.WeightLiquidity + cfg.WeightMomentum + cfg.WeightVolatility + cfg.WeightExecQuality
	if totalW <= 0 {
		return 0
	}
	score := cfg.WeightLiquidity*liq + cfg.WeightMomentum*mom + cfg.WeightVolatility*vol + cfg.WeightExecQuality*exec
	return score / totalW
}

func bandScore(v, lo, hi float64) float64 {
	width := hi - lo
	if width <= 0 {
		return 0
	}
	center := (hi + lo) / 2
	return clamp01(1 - math.Abs(v-center)/(width/2))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
