// Package backtest replays a strategy version over historical bars. The
// engine is a pure fold: no clock, no persistence, no network. Identical
// inputs produce identical trade logs, which is what lets live and simulated
// rewards share one bandit.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tradesignal/internal/features"
	"tradesignal/internal/marketdata"
	"tradesignal/internal/metrics"
	"tradesignal/internal/models"
	"tradesignal/internal/risk"
	"tradesignal/internal/strategy"
	"tradesignal/internal/trading"
)

type Input struct {
	Symbol    string
	Timeframe string
	Start     time.Time
	End       time.Time
	Bars      []marketdata.Bar

	Generator         strategy.Generator
	StrategyVersionID uint64
	Params            json.RawMessage
	Rules             json.RawMessage

	StartingCapital float64
	SlippageBps     float64
	TimeStopBars    int
	MinBars         int

	RiskPerTradePct float64
	MaxPositionPct  float64
}

// Result always carries whatever curve and trades accumulated before a
// failure; a run that dies on day three still shows days one and two.
type Result struct {
	Trades  []metrics.TradeRecord
	Curve   []metrics.EquityPoint
	Summary metrics.Summary
}

type position struct {
	side       string
	qty        int64
	entryPrice float64
	entryTime  time.Time
	stop       float64
	target     float64
	entryBar   int
	riskPerSh  float64
}

const (
	exitStop     = "stop"
	exitTarget   = "target"
	exitTimeStop = "time_stop"
	exitEndOfRun = "end_of_run"
)

// Run replays the strategy bar by bar. Fills happen at the next bar's open
// shifted by slippage; stops and targets fill at their trigger price when the
// bar's range crosses them. The context is checked between bars only, so a
// cancel never tears a fill in half.
func Run(ctx context.Context, in Input) (Result, error) {
	out := Result{}
	if in.Generator == nil || in.StartingCapital <= 0 {
		return out, fmt.Errorf("%w: backtest input incomplete", trading.ErrInvalidParameters)
	}
	if len(in.Bars) == 0 {
		return out, fmt.Errorf("%w: no bars for %s", trading.ErrDataUnavailable, in.Symbol)
	}
	minBars := in.MinBars
	if minBars <= 0 {
		minBars = 30
	}
	if in.TimeStopBars <= 0 {
		in.TimeStopBars = 20
	}
	slip := in.SlippageBps / 10000

	cash := in.StartingCapital
	var pos *position

	markEquity := func(t time.Time, price float64) {
		eq := cash
		if pos != nil {
			eq += pos.markValue(price)
		}
		out.Curve = append(out.Curve, metrics.EquityPoint{Timestamp: t, Equity: eq})
	}

	closeTrade := func(exitPrice float64, exitTime time.Time, reason string) {
		pnl := pos.pnl(exitPrice)
		cash += pos.entryValue() + pnl
		r := 0.0
		if pos.riskPerSh > 0 {
			r = pnl / (float64(pos.qty) * pos.riskPerSh)
		}
		out.Trades = append(out.Trades, metrics.TradeRecord{
			Symbol:     in.Symbol,
			Side:       pos.side,
			EntryTime:  pos.entryTime,
			ExitTime:   exitTime,
			EntryPrice: pos.entryPrice,
			ExitPrice:  exitPrice,
			Qty:        pos.qty,
			PnL:        pnl,
			RMultiple:  r,
			ExitReason: reason,
		})
		pos = nil
	}

	for i, bar := range in.Bars {
		if err := ctx.Err(); err != nil {
			out.Summary = metrics.Aggregate(out.Trades, out.Curve)
			return out, fmt.Errorf("cancelled: %w", err)
		}
		if !bar.Valid() {
			out.Summary = metrics.Aggregate(out.Trades, out.Curve)
			return out, fmt.Errorf("%w: corrupt bar at %s", trading.ErrDataUnavailable, bar.Timestamp.Format(time.RFC3339))
		}

		// Exits resolve before new entries; a position never flips on a
		// single bar.
		if pos != nil {
			if exitPrice, reason, hit := pos.checkExit(bar, i, in.TimeStopBars); hit {
				closeTrade(exitPrice, bar.Timestamp, reason)
			}
		}

		if pos == nil && i >= minBars && i+1 < len(in.Bars) {
			fs, err := features.Extract(in.Symbol, in.Bars[:i+1], nil, nil, minBars)
			if err == nil {
				signals, genErr := in.Generator.Generate(strategy.GenInput{
					StrategyVersionID: in.StrategyVersionID,
					Symbol:            in.Symbol,
					Timeframe:         in.Timeframe,
					AsOf:              bar.Timestamp,
					Features:          fs,
					Params:            in.Params,
					Rules:             in.Rules,
				})
				if genErr != nil {
					out.Summary = metrics.Aggregate(out.Trades, out.Curve)
					return out, genErr
				}
				if len(signals) > 0 {
					next := in.Bars[i+1]
					if !next.Valid() {
						out.Summary = metrics.Aggregate(out.Trades, out.Curve)
						return out, fmt.Errorf("%w: corrupt bar at %s", trading.ErrDataUnavailable, next.Timestamp.Format(time.RFC3339))
					}
					pos = openPosition(signals[0], next, i+1, slip, cash, in)
					if pos != nil {
						cash -= pos.entryValue()
					}
				}
			}
		}

		markEquity(bar.Timestamp, bar.Close)
	}

	last := in.Bars[len(in.Bars)-1]
	if pos != nil {
		closeTrade(fillPrice(last.Close, pos.side, false, slip), last.Timestamp, exitEndOfRun)
		// Replace the final mark with realized equity.
		out.Curve[len(out.Curve)-1] = metrics.EquityPoint{Timestamp: last.Timestamp, Equity: cash}
	}

	if !in.End.IsZero() {
		period := marketdata.TimeframeDuration(in.Timeframe)
		if period > 0 && last.Timestamp.Add(2*period).Before(in.End) {
			out.Summary = metrics.Aggregate(out.Trades, out.Curve)
			return out, fmt.Errorf("%w: bars end at %s, requested through %s",
				trading.ErrDataUnavailable,
				last.Timestamp.Format(time.RFC3339),
				in.End.Format(time.RFC3339))
		}
	}

	out.Summary = metrics.Aggregate(out.Trades, out.Curve)
	return out, nil
}

func openPosition(sig models.Signal, next marketdata.Bar, entryBar int, slip, cash float64, in Input) *position {
	side := risk.LongSide
	if sig.SignalType == models.SignalEntryShort {
		side = risk.ShortSide
	}
	if sig.Stop == nil {
		return nil
	}
	entry := fillPrice(next.Open, side, true, slip)
	stop, _ := sig.Stop.Float64()
	size, err := risk.SizePosition(cash, entry, stop, in.RiskPerTradePct, in.MaxPositionPct)
	if err != nil {
		return nil
	}
	target := 0.0
	if sig.Target != nil {
		target, _ = sig.Target.Float64()
	}
	return &position{
		side:       side,
		qty:        size.Shares,
		entryPrice: entry,
		entryTime:  next.Timestamp,
		stop:       stop,
		target:     target,
		entryBar:   entryBar,
		riskPerSh:  size.RiskPerShare,
	}
}

func (p *position) entryValue() float64 {
	return float64(p.qty) * p.entryPrice
}

func (p *position) pnl(exitPrice float64) float64 {
	if p.side == risk.ShortSide {
		return float64(p.qty) * (p.entryPrice - exitPrice)
	}
	return float64(p.qty) * (exitPrice - p.entryPrice)
}

func (p *position) markValue(price float64) float64 {
	return p.entryValue() + p.pnl(price)
}

// checkExit resolves stop before target when a single bar spans both; the
// conservative reading of an ambiguous bar.
func (p *position) checkExit(bar marketdata.Bar, barIdx, timeStopBars int) (float64, string, bool) {
	if p.side == risk.LongSide {
		if p.stop > 0 && bar.Low <= p.stop {
			return p.stop, exitStop, true
		}
		if p.target > 0 && bar.High >= p.target {
			return p.target, exitTarget, true
		}
	} else {
		if p.stop > 0 && bar.High >= p.stop {
			return p.stop, exitStop, true
		}
		if p.target > 0 && bar.Low <= p.target {
			return p.target, exitTarget, true
		}
	}
	if timeStopBars > 0 && barIdx-p.entryBar >= timeStopBars {
		return bar.Close, exitTimeStop, true
	}
	return 0, "", false
}

// fillPrice shifts the reference price against the trader by slippage.
func fillPrice(ref float64, side string, entering bool, slip float64) float64 {
	buying := (side == risk.LongSide) == entering
	if buying {
		return ref * (1 + slip)
	}
	return ref * (1 - slip)
}
