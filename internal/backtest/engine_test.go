package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesignal/internal/marketdata"
	"tradesignal/internal/models"
	"tradesignal/internal/strategy"
	"tradesignal/internal/trading"
)

// stubGen fires a fixed long signal when the window reaches a configured bar
// count, which pins entries to an exact bar index.
type stubGen struct {
	fireAtCount int
	stop        float64
	target      float64
}

func (g *stubGen) Family() string                           { return "stub" }
func (g *stubGen) DefaultParams() json.RawMessage           { return json.RawMessage(`{}`) }
func (g *stubGen) ValidateParams(raw json.RawMessage) error { return nil }

func (g *stubGen) Generate(in strategy.GenInput) ([]models.Signal, error) {
	if g.fireAtCount == 0 || in.Features.BarCount != g.fireAtCount {
		return nil, nil
	}
	stop := decimal.NewFromFloat(g.stop)
	tgt := decimal.NewFromFloat(g.target)
	return []models.Signal{{
		StrategyVersionID: in.StrategyVersionID,
		Symbol:            in.Symbol,
		SignalType:        models.SignalEntryLong,
		Price:             decimal.NewFromFloat(in.Features.Close),
		Confidence:        0.7,
		Stop:              &stop,
		Target:            &tgt,
		CreatedAt:         in.AsOf,
	}}, nil
}

func flatBars(n int, start time.Time) []marketdata.Bar {
	bars := make([]marketdata.Bar, n)
	for i := 0; i < n; i++ {
		bars[i] = marketdata.Bar{
			Symbol:    "TEST",
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      100,
			High:      100.5,
			Low:       99.5,
			Close:     100,
			Volume:    10_000,
		}
	}
	return bars
}

func baseInput(bars []marketdata.Bar, gen strategy.Generator) Input {
	var end time.Time
	if len(bars) > 0 {
		end = bars[len(bars)-1].Timestamp
	}
	return Input{
		Symbol:            "TEST",
		Timeframe:         "5m",
		Start:             bars[0].Timestamp,
		End:               end,
		Bars:              bars,
		Generator:         gen,
		StrategyVersionID: 3,
		StartingCapital:   10_000,
		TimeStopBars:      50,
		MinBars:           15,
		RiskPerTradePct:   0.01,
		MaxPositionPct:    0.2,
	}
}

func TestRun_StopExit(t *testing.T) {
	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	bars := flatBars(30, start)
	// Bar 22 trades down through the stop.
	bars[22].Open = 99
	bars[22].Low = 94
	bars[22].Close = 96

	in := baseInput(bars, &stubGen{fireAtCount: 20, stop: 95, target: 110})
	res, err := Run(context.Background(), in)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades=%d want=1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.ExitReason != exitStop {
		t.Fatalf("exitReason=%s want=%s", tr.ExitReason, exitStop)
	}
	if tr.EntryPrice != 100 || tr.ExitPrice != 95 {
		t.Fatalf("entry=%.2f exit=%.2f want 100/95", tr.EntryPrice, tr.ExitPrice)
	}
	// 1% of 10k at $5/share risk gives 20 shares; the 20% cap also allows 20.
	if tr.Qty != 20 {
		t.Fatalf("qty=%d want=20", tr.Qty)
	}
	if tr.PnL != -100 {
		t.Fatalf("pnl=%.2f want=-100", tr.PnL)
	}
	if tr.RMultiple != -1 {
		t.Fatalf("rMultiple=%.4f want=-1", tr.RMultiple)
	}
	final := res.Curve[len(res.Curve)-1].Equity
	if final != 9900 {
		t.Fatalf("final equity=%.2f want=9900", final)
	}
	if !tr.EntryTime.Equal(bars[20].Timestamp) {
		t.Fatalf("entryTime=%s want next-bar timestamp %s", tr.EntryTime, bars[20].Timestamp)
	}
}

func TestRun_TargetExit(t *testing.T) {
	bars := flatBars(30, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))
	bars[23].High = 111
	bars[23].Close = 110

	in := baseInput(bars, &stubGen{fireAtCount: 20, stop: 95, target: 110})
	res, err := Run(context.Background(), in)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].ExitReason != exitTarget {
		t.Fatalf("trades=%+v want one target exit", res.Trades)
	}
	if res.Trades[0].PnL != 200 {
		t.Fatalf("pnl=%.2f want=200", res.Trades[0].PnL)
	}
}

func TestRun_StopBeatsTargetOnAmbiguousBar(t *testing.T) {
	bars := flatBars(30, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))
	// One bar spans both levels; the conservative read fills the stop.
	bars[23].Low = 94
	bars[23].High = 111

	in := baseInput(bars, &stubGen{fireAtCount: 20, stop: 95, target: 110})
	res, err := Run(context.Background(), in)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].ExitReason != exitStop {
		t.Fatalf("trades=%+v want stop exit on ambiguous bar", res.Trades)
	}
}

func TestRun_TimeStop(t *testing.T) {
	bars := flatBars(30, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))
	in := baseInput(bars, &stubGen{fireAtCount: 20, stop: 95, target: 110})
	in.TimeStopBars = 3
	res, err := Run(context.Background(), in)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].ExitReason != exitTimeStop {
		t.Fatalf("trades=%+v want time stop exit", res.Trades)
	}
	// Entry on bar 20, time stop three bars later.
	if !res.Trades[0].ExitTime.Equal(bars[23].Timestamp) {
		t.Fatalf("exitTime=%s want=%s", res.Trades[0].ExitTime, bars[23].Timestamp)
	}
}

func TestRun_EndOfRunClose(t *testing.T) {
	bars := flatBars(25, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))
	in := baseInput(bars, &stubGen{fireAtCount: 20, stop: 95, target: 110})
	res, err := Run(context.Background(), in)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].ExitReason != exitEndOfRun {
		t.Fatalf("trades=%+v want end-of-run close", res.Trades)
	}
}

func TestRun_SlippageAppliedToEntry(t *testing.T) {
	bars := flatBars(25, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))
	in := baseInput(bars, &stubGen{fireAtCount: 20, stop: 95, target: 110})
	in.SlippageBps = 10
	res, err := Run(context.Background(), in)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades=%d want=1", len(res.Trades))
	}
	want := 100 * (1 + 10.0/10000)
	if res.Trades[0].EntryPrice != want {
		t.Fatalf("entry=%.6f want=%.6f", res.Trades[0].EntryPrice, want)
	}
}

func TestRun_Deterministic(t *testing.T) {
	bars := flatBars(30, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))
	bars[22].Low = 94
	in := baseInput(bars, &stubGen{fireAtCount: 20, stop: 95, target: 110})

	a, err := Run(context.Background(), in)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	b, err := Run(context.Background(), in)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(a.Trades) != len(b.Trades) || len(a.Curve) != len(b.Curve) {
		t.Fatalf("shapes differ: %d/%d trades, %d/%d points",
			len(a.Trades), len(b.Trades), len(a.Curve), len(b.Curve))
	}
	for i := range a.Curve {
		if a.Curve[i] != b.Curve[i] {
			t.Fatalf("curve diverges at %d: %+v vs %+v", i, a.Curve[i], b.Curve[i])
		}
	}
	if a.Summary != b.Summary {
		t.Fatalf("summaries differ: %+v vs %+v", a.Summary, b.Summary)
	}
}

func TestRun_CorruptBarFailsWithPartialCurve(t *testing.T) {
	bars := flatBars(30, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))
	bars[25].Close = -1

	in := baseInput(bars, &stubGen{})
	res, err := Run(context.Background(), in)
	if !errors.Is(err, trading.ErrDataUnavailable) {
		t.Fatalf("err=%v want ErrDataUnavailable", err)
	}
	// Everything before the corrupt bar is retained.
	if len(res.Curve) != 25 {
		t.Fatalf("curve=%d points want=25", len(res.Curve))
	}
}

func TestRun_CoverageGap(t *testing.T) {
	bars := flatBars(30, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))
	in := baseInput(bars, &stubGen{})
	// Request a window extending well past the last bar.
	in.End = bars[len(bars)-1].Timestamp.Add(1 * time.Hour)

	res, err := Run(context.Background(), in)
	if !errors.Is(err, trading.ErrDataUnavailable) {
		t.Fatalf("err=%v want ErrDataUnavailable", err)
	}
	if len(res.Curve) != 30 {
		t.Fatalf("curve=%d points want full 30 despite failure", len(res.Curve))
	}
}

func TestRun_CancelledContext(t *testing.T) {
	bars := flatBars(30, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, baseInput(bars, &stubGen{}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestRun_NoSignalsNoTrades(t *testing.T) {
	bars := flatBars(30, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))
	res, err := Run(context.Background(), baseInput(bars, &stubGen{}))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("trades=%d want=0", len(res.Trades))
	}
	if len(res.Curve) != 30 {
		t.Fatalf("curve=%d want=30", len(res.Curve))
	}
	for _, p := range res.Curve {
		if p.Equity != 10_000 {
			t.Fatalf("equity=%.2f want=10000 with no trades", p.Equity)
		}
	}
}

func TestRun_InvalidInput(t *testing.T) {
	bars := flatBars(5, time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))

	_, err := Run(context.Background(), Input{Symbol: "TEST", Bars: bars, StartingCapital: 10_000})
	if !errors.Is(err, trading.ErrInvalidParameters) {
		t.Fatalf("err=%v want ErrInvalidParameters for nil generator", err)
	}

	in := baseInput(bars, &stubGen{})
	in.Bars = nil
	_, err = Run(context.Background(), in)
	if !errors.Is(err, trading.ErrDataUnavailable) {
		t.Fatalf("err=%v want ErrDataUnavailable for empty bars", err)
	}
}
