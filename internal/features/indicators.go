package features

import "math"

// ATR computes the Average True Range over closes/highs/lows, Wilder-smoothed.
// Values before index period-1 are zero.
func ATR(highs, lows, closes []float64, period int) []float64 {
	length := len(closes)
	atr := make([]float64, length)
	if period <= 0 || length < period+1 {
		return atr
	}

	trs := make([]float64, length)
	trs[0] = highs[0] - lows[0]
	for i := 1; i < length; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr := hl
		if hc > tr {
			tr = hc
		}
		if lc > tr {
			tr = lc
		}
		trs[i] = tr
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += trs[i]
	}
	atr[period-1] = sum / float64(period)
	for i := period; i < length; i++ {
		atr[i] = (atr[i-1]*float64(period-1) + trs[i]) / float64(period)
	}
	return atr
}

// EMA computes the exponential moving average, seeded with an SMA.
func EMA(data []float64, period int) []float64 {
	ema := make([]float64, len(data))
	if period <= 0 || len(data) < period {
		return ema
	}
	k := 2.0 / (float64(period) + 1.0)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	ema[period-1] = sum / float64(period)
	for i := period; i < len(data); i++ {
		ema[i] = data[i]*k + ema[i-1]*(1-k)
	}
	return ema
}

// SMA computes the simple moving average of the trailing window ending at the
// last element. Returns 0 when there is not enough data.
func SMA(data []float64, period int) float64 {
	if period <= 0 || len(data) < period {
		return 0
	}
	sum := 0.0
	for i := len(data) - period; i < len(data); i++ {
		sum += data[i]
	}
	return sum / float64(period)
}

// RSI computes the Relative Strength Index with Wilder smoothing. Values
// before index period are zero.
func RSI(closes []float64, period int) []float64 {
	rsi := make([]float64, len(closes))
	if period <= 0 || len(closes) < period+1 {
		return rsi
	}

	gains := make([]float64, 0, len(closes)-1)
	losses := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	sumGain, sumLoss := 0.0, 0.0
	for i := 0; i < period; i++ {
		sumGain += gains[i]
		sumLoss += losses[i]
	}
	avgGain := sumGain / float64(period)
	avgLoss := sumLoss / float64(period)

	if avgLoss == 0 {
		rsi[period] = 100
	} else {
		rs := avgGain / avgLoss
		rsi[period] = 100 - 100/(1+rs)
	}

	for i := period + 1; i < len(closes); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i-1]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i-1]) / float64(period)
		if avgLoss == 0 {
			rsi[i] = 100
		} else {
			rs := avgGain / avgLoss
			rsi[i] = 100 - 100/(1+rs)
		}
	}
	return rsi
}

// VWAP computes the volume-weighted average price of the whole series.
func VWAP(highs, lows, closes, volumes []float64) float64 {
	var pv, vol float64
	for i := range closes {
		typical := (highs[i] + lows[i] + closes[i]) / 3.0
		pv += typical * volumes[i]
		vol += volumes[i]
	}
	if vol == 0 {
		return 0
	}
	return pv / vol
}

// ROC returns the rate of change over lookback bars as a percentage.
func ROC(closes []float64, lookback int) float64 {
	if lookback <= 0 || len(closes) <= lookback {
		return 0
	}
	prev := closes[len(closes)-1-lookback]
	if prev == 0 {
		return 0
	}
	return (closes[len(closes)-1] - prev) / prev * 100
}

// BollingerWidth returns (upper-lower)/middle for the trailing window; a
// normalized volatility measure.
func BollingerWidth(closes []float64, period int, stdDev float64) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	mid := SMA(closes, period)
	if mid == 0 {
		return 0
	}
	variance := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - mid
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))
	return (2 * stdDev * sd) / mid
}

// RollingLow returns the lowest low of the trailing window, excluding the
// final bar; a cheap support estimate.
func RollingLow(lows []float64, window int) float64 {
	return rollingExtreme(lows, window, false)
}

// RollingHigh returns the highest high of the trailing window, excluding the
// final bar; a cheap resistance estimate.
func RollingHigh(highs []float64, window int) float64 {
	return rollingExtreme(highs, window, true)
}

func rollingExtreme(data []float64, window int, wantHigh bool) float64 {
	n := len(data)
	if window <= 0 || n < 2 {
		return 0
	}
	start := n - 1 - window
	if start < 0 {
		start = 0
	}
	out := data[start]
	for i := start + 1; i < n-1; i++ {
		if wantHigh && data[i] > out {
			out = data[i]
		}
		if !wantHigh && data[i] < out {
			out = data[i]
		}
	}
	return out
}

// AvgDollarVolume returns the mean of close*volume over the trailing window.
func AvgDollarVolume(closes, volumes []float64, window int) float64 {
	n := len(closes)
	if window <= 0 || n == 0 {
		return 0
	}
	if window > n {
		window = n
	}
	sum := 0.0
	for i := n - window; i < n; i++ {
		sum += closes[i] * volumes[i]
	}
	return sum / float64(window)
}
