package marketdata

import (
	"strconv"
	"strings"
	"time"
)

// TimeframeDuration parses compact timeframe strings ("1m", "5m", "1h",
// "1d", "1w") into a bar period. Unknown inputs return zero.
func TimeframeDuration(tf string) time.Duration {
	tf = strings.ToLower(strings.TrimSpace(tf))
	if len(tf) < 2 {
		return 0
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0
	}
	switch tf[len(tf)-1] {
	case 'm':
		return time.Duration(n) * time.Minute
	case 'h':
		return time.Duration(n) * time.Hour
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour
	}
	return 0
}

// Bar is one OHLCV candle. Bars arrive oldest-first from the provider.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Valid reports whether the bar is usable. Corrupt bars (non-positive prices,
// inverted high/low) abort backtests and skip symbols live.
func (b Bar) Valid() bool {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return false
	}
	if b.High < b.Low {
		return false
	}
	return true
}

type Quote struct {
	Symbol  string    `json:"symbol"`
	Bid     float64   `json:"bid"`
	Ask     float64   `json:"ask"`
	BidSize float64   `json:"bid_size"`
	AskSize float64   `json:"ask_size"`
	Last    float64   `json:"last"`
	AsOf    time.Time `json:"as_of"`
}

// DepthSnapshot aggregates top-of-book depth on each side.
type DepthSnapshot struct {
	Symbol   string    `json:"symbol"`
	BidDepth float64   `json:"bid_depth"`
	AskDepth float64   `json:"ask_depth"`
	AsOf     time.Time `json:"as_of"`
}
