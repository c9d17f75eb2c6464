// Package features turns raw bars, quotes and depth snapshots into the
// per-symbol FeatureSet consumed by the screener and the signal generators.
// Everything here is a pure function of its inputs.
package features

import (
	"fmt"
	"time"

	"tradesignal/internal/marketdata"
	"tradesignal/internal/trading"
)

type FeatureSet struct {
	Symbol string
	// AsOf is the timestamp of the last bar, never the wall clock.
	AsOf time.Time

	Close  float64
	Open   float64
	High   float64
	Low    float64
	Volume float64

	ATR           float64
	ATRPct        float64
	RSI           float64
	EMA20         float64
	SMA20         float64
	VWAP          float64
	MomentumPct   float64
	BollWidth     float64
	Support       float64
	Resistance    float64
	AvgDollarVol  float64
	BarCount      int
	SessionOpen   float64
	SessionHigh   float64
	SessionLow    float64
	OpeningRangeN int

	SpreadBps      float64
	DepthImbalance float64
	HasQuote       bool
}

const (
	atrPeriod       = 14
	rsiPeriod       = 14
	emaPeriod       = 20
	srWindow        = 20
	dollarVolWindow = 20
	momentumBars    = 10
	openingRange    = 6
)

// Extract computes the FeatureSet for one symbol. minBars guards against
// fabricating indicator values from thin history.
func Extract(symbol string, bars []marketdata.Bar, quote *marketdata.Quote, depth *marketdata.DepthSnapshot, minBars int) (FeatureSet, error) {
	if minBars < atrPeriod+1 {
		minBars = atrPeriod + 1
	}
	if len(bars) < minBars {
		return FeatureSet{}, fmt.Errorf("%w: %s has %d bars, need %d", trading.ErrDataUnavailable, symbol, len(bars), minBars)
	}
	for _, b := range bars {
		if !b.Valid() {
			return FeatureSet{}, fmt.Errorf("%w: %s has corrupt bar at %s", trading.ErrDataUnavailable, symbol, b.Timestamp)
		}
	}

	n := len(bars)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	atr := ATR(highs, lows, closes, atrPeriod)
	rsi := RSI(closes, rsiPeriod)
	ema := EMA(closes, emaPeriod)

	last := bars[n-1]
	fs := FeatureSet{
		Symbol:   symbol,
		AsOf:     last.Timestamp,
		Close:    last.Close,
		Open:     last.Open,
		High:     last.High,
		Low:      last.Low,
		Volume:   last.Volume,
		BarCount: n,

		ATR:          atr[n-1],
		RSI:          rsi[n-1],
		EMA20:        ema[n-1],
		SMA20:        SMA(closes, emaPeriod),
		VWAP:         VWAP(highs, lows, closes, volumes),
		MomentumPct:  ROC(closes, momentumBars),
		BollWidth:    BollingerWidth(closes, emaPeriod, 2),
		Support:      RollingLow(lows, srWindow),
		Resistance:   RollingHigh(highs, srWindow),
		AvgDollarVol: AvgDollarVolume(closes, volumes, dollarVolWindow),
	}
	if last.Close > 0 {
		fs.ATRPct = fs.ATR / last.Close * 100
	}

	fs.SessionOpen = bars[0].Open
	rangeN := openingRange
	if rangeN > n {
		rangeN = n
	}
	fs.OpeningRangeN = rangeN
	fs.SessionHigh = highs[0]
	fs.SessionLow = lows[0]
	for i := 0; i < rangeN; i++ {
		if highs[i] > fs.SessionHigh {
			fs.SessionHigh = highs[i]
		}
		if lows[i] < fs.SessionLow {
			fs.SessionLow = lows[i]
		}
	}

	if quote != nil && quote.Bid > 0 && quote.Ask > 0 && quote.Ask >= quote.Bid {
		fs.HasQuote = true
		fs.SpreadBps = SpreadBps(quote.Bid, quote.Ask)
	}
	if depth != nil {
		fs.DepthImbalance = DepthImbalance(depth.BidDepth, depth.AskDepth)
	}
	return fs, nil
}

// SpreadBps returns the bid/ask spread in basis points of the midpoint.
func SpreadBps(bid, ask float64) float64 {
	mid := (bid + ask) / 2
	if mid <= 0 {
		return 0
	}
	return (ask - bid) / mid * 10_000
}

// DepthImbalance returns (bid-ask)/(bid+ask) depth in [-1, 1]. Positive means
// bid-heavy books.
func DepthImbalance(bidDepth, askDepth float64) float64 {
	total := bidDepth + askDepth
	if total <= 0 {
		return 0
	}
	return (bidDepth - askDepth) / total
}
