// Package metrics aggregates performance statistics from any trade log and
// equity curve, simulated or live. The bandit reward mapping lives here so
// live fills and backtests reward arms identically.
package metrics

import (
	"math"
	"time"
)

type TradeRecord struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Qty        int64     `json:"qty"`
	PnL        float64   `json:"pnl"`
	RMultiple  float64   `json:"r_multiple"`
	ExitReason string    `json:"exit_reason"`
}

type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

type Summary struct {
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	TotalPnL     float64 `json:"total_pnl"`
	ReturnPct    float64 `json:"return_pct"`
	Sharpe       float64 `json:"sharpe"`
	Sortino      float64 `json:"sortino"`
	Calmar       float64 `json:"calmar"`
	MaxDrawdown  float64 `json:"max_drawdown_pct"`
	ProfitFactor float64 `json:"profit_factor"`
	AvgRMultiple float64 `json:"avg_r_multiple"`
	Expectancy   float64 `json:"expectancy"`
}

// periodsPerYear assumes daily equity points; good enough for comparability
// across runs, which is all the bandit needs.
const periodsPerYear = 252

func Aggregate(trades []TradeRecord, curve []EquityPoint) Summary {
	s := Summary{Trades: len(trades)}

	var grossWin, grossLoss, sumR float64
	for _, t := range trades {
		if t.PnL > 0 {
			s.Wins++
			grossWin += t.PnL
		} else {
			s.Losses++
			grossLoss += -t.PnL
		}
		s.TotalPnL += t.PnL
		sumR += t.RMultiple
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
		s.AvgRMultiple = sumR / float64(s.Trades)
		s.Expectancy = s.TotalPnL / float64(s.Trades)
	}
	if grossLoss > 0 {
		s.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		s.ProfitFactor = math.Inf(1)
	}

	if len(curve) < 2 {
		return s
	}
	start := curve[0].Equity
	end := curve[len(curve)-1].Equity
	if start > 0 {
		s.ReturnPct = (end - start) / start * 100
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1].Equity > 0 {
			returns = append(returns, (curve[i].Equity-curve[i-1].Equity)/curve[i-1].Equity)
		}
	}
	s.Sharpe = sharpe(returns)
	s.Sortino = sortino(returns)
	s.MaxDrawdown = MaxDrawdownPct(curve)
	if s.MaxDrawdown > 0 && start > 0 {
		years := float64(len(returns)) / periodsPerYear
		if years > 0 {
			annualized := s.ReturnPct / years
			s.Calmar = annualized / s.MaxDrawdown
		}
	}
	return s
}

// MaxDrawdownPct returns the peak-to-trough decline as a positive percentage.
func MaxDrawdownPct(curve []EquityPoint) float64 {
	peak := math.Inf(-1)
	maxDD := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func sharpe(returns []float64) float64 {
	mean, sd := meanStd(returns)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(periodsPerYear)
}

func sortino(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean, _ := meanStd(returns)
	var downSq float64
	var downs int
	for _, r := range returns {
		if r < 0 {
			downSq += r * r
			downs++
		}
	}
	if downs == 0 {
		return 0
	}
	downDev := math.Sqrt(downSq / float64(len(returns)))
	if downDev == 0 {
		return 0
	}
	return mean / downDev * math.Sqrt(periodsPerYear)
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}

// RewardFromPnL maps a realized trade outcome onto the bandit's {0,1} reward.
func RewardFromPnL(pnl float64) float64 {
	if pnl > 0 {
		return 1
	}
	return 0
}
