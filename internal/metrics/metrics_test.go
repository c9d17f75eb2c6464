package metrics

import (
	"math"
	"testing"
	"time"
)

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil, nil)
	if s.Trades != 0 || s.WinRate != 0 || s.TotalPnL != 0 {
		t.Fatalf("summary=%+v want zeroes", s)
	}
}

func TestAggregate_TradeStats(t *testing.T) {
	trades := []TradeRecord{
		{PnL: 200, RMultiple: 2},
		{PnL: -100, RMultiple: -1},
		{PnL: 300, RMultiple: 3},
		{PnL: -100, RMultiple: -1},
	}
	s := Aggregate(trades, nil)
	if s.Trades != 4 || s.Wins != 2 || s.Losses != 2 {
		t.Fatalf("summary=%+v want 4 trades, 2 wins, 2 losses", s)
	}
	if s.WinRate != 0.5 {
		t.Fatalf("winRate=%.4f want=0.5", s.WinRate)
	}
	if s.TotalPnL != 300 {
		t.Fatalf("totalPnL=%.2f want=300", s.TotalPnL)
	}
	if s.ProfitFactor != 2.5 {
		t.Fatalf("profitFactor=%.4f want=2.5", s.ProfitFactor)
	}
	if s.AvgRMultiple != 0.75 {
		t.Fatalf("avgR=%.4f want=0.75", s.AvgRMultiple)
	}
	if s.Expectancy != 75 {
		t.Fatalf("expectancy=%.4f want=75", s.Expectancy)
	}
}

func TestAggregate_NoLossesInfiniteProfitFactor(t *testing.T) {
	s := Aggregate([]TradeRecord{{PnL: 100}}, nil)
	if !math.IsInf(s.ProfitFactor, 1) {
		t.Fatalf("profitFactor=%.4f want=+Inf", s.ProfitFactor)
	}
}

func TestAggregate_ZeroPnLCountsAsLoss(t *testing.T) {
	s := Aggregate([]TradeRecord{{PnL: 0}}, nil)
	if s.Losses != 1 || s.Wins != 0 {
		t.Fatalf("summary=%+v want scratch counted as loss", s)
	}
}

func curveFrom(values ...float64) []EquityPoint {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	out := make([]EquityPoint, len(values))
	for i, v := range values {
		out[i] = EquityPoint{Timestamp: base.AddDate(0, 0, i), Equity: v}
	}
	return out
}

func TestMaxDrawdownPct(t *testing.T) {
	curve := curveFrom(100, 120, 90, 110, 80)
	// Peak 120, trough 80 => 33.33%.
	got := MaxDrawdownPct(curve)
	if math.Abs(got-100*40.0/120.0) > 1e-9 {
		t.Fatalf("got=%.4f want=%.4f", got, 100*40.0/120.0)
	}
}

func TestMaxDrawdownPct_MonotoneUp(t *testing.T) {
	if got := MaxDrawdownPct(curveFrom(100, 110, 120)); got != 0 {
		t.Fatalf("got=%.4f want=0", got)
	}
}

func TestAggregate_ReturnAndRatios(t *testing.T) {
	curve := curveFrom(10_000, 10_100, 10_050, 10_200)
	s := Aggregate(nil, curve)
	if math.Abs(s.ReturnPct-2) > 1e-9 {
		t.Fatalf("returnPct=%.4f want=2", s.ReturnPct)
	}
	if s.Sharpe <= 0 {
		t.Fatalf("sharpe=%.4f want>0 for rising curve", s.Sharpe)
	}
	if s.MaxDrawdown <= 0 {
		t.Fatalf("maxDrawdown=%.4f want>0", s.MaxDrawdown)
	}
}

func TestAggregate_FlatCurve(t *testing.T) {
	s := Aggregate(nil, curveFrom(10_000, 10_000, 10_000))
	if s.Sharpe != 0 || s.Sortino != 0 || s.ReturnPct != 0 {
		t.Fatalf("summary=%+v want zero ratios on flat curve", s)
	}
}

func TestRewardFromPnL(t *testing.T) {
	if got := RewardFromPnL(0.01); got != 1 {
		t.Fatalf("got=%.1f want=1", got)
	}
	if got := RewardFromPnL(0); got != 0 {
		t.Fatalf("got=%.1f want=0", got)
	}
	if got := RewardFromPnL(-5); got != 0 {
		t.Fatalf("got=%.1f want=0", got)
	}
}
