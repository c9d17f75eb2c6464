// Package risk holds the pure sizing/stop/target math and the pre-trade
// guardrail checks. Nothing in this package touches a clock, a database or a
// network; the order router supplies state and persists outcomes.
package risk

import (
	"math"

	"tradesignal/internal/trading"
)

// PositionSize is audit-complete: both intermediate share counts are kept so
// the chosen minimum can be reviewed later.
type PositionSize struct {
	Shares        int64   `json:"shares"`
	DollarRisk    float64 `json:"dollar_risk"`
	PositionValue float64 `json:"position_value"`
	PositionPct   float64 `json:"position_pct"`
	RiskPerShare  float64 `json:"risk_per_share"`
	SharesByRisk  int64   `json:"shares_by_risk"`
	SharesByCap   int64   `json:"shares_by_cap"`
}

// SizePosition computes min(floor(equity*riskPct/|entry-stop|),
// floor(equity*maxPosPct/entry)). A zero risk distance is degenerate: such
// signals are rejected upstream and never sized.
func SizePosition(equity, entry, stop, riskPerTradePct, maxPositionPct float64) (PositionSize, error) {
	riskPerShare := math.Abs(entry - stop)
	if equity <= 0 || entry <= 0 || riskPerShare == 0 {
		return PositionSize{}, trading.ErrDegenerateRisk
	}

	dollarsAtRisk := equity * riskPerTradePct
	sharesByRisk := int64(math.Floor(dollarsAtRisk / riskPerShare))
	sharesByCap := int64(math.Floor(equity * maxPositionPct / entry))

	shares := sharesByRisk
	if sharesByCap < shares {
		shares = sharesByCap
	}
	if shares <= 0 {
		return PositionSize{}, trading.ErrDegenerateRisk
	}

	return PositionSize{
		Shares:        shares,
		DollarRisk:    float64(shares) * riskPerShare,
		PositionValue: float64(shares) * entry,
		PositionPct:   float64(shares) * entry / equity,
		RiskPerShare:  riskPerShare,
		SharesByRisk:  sharesByRisk,
		SharesByCap:   sharesByCap,
	}, nil
}

// SizeFixed returns floor(notional/entry): the "fixed" sizing method.
func SizeFixed(notional, entry float64) int64 {
	if notional <= 0 || entry <= 0 {
		return 0
	}
	return int64(math.Floor(notional / entry))
}

// SizePercentage returns floor(equity*pct/entry): the "percentage" method.
func SizePercentage(equity, pct, entry float64) int64 {
	if equity <= 0 || pct <= 0 || entry <= 0 {
		return 0
	}
	return int64(math.Floor(equity * pct / entry))
}
