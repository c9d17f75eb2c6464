package risk

const (
	StopMethodATR     = "atr"
	StopMethodPercent = "percent"
	StopMethodSR      = "support_resistance"

	LongSide  = "long"
	ShortSide = "short"
)

// StopLevels returns every candidate so the selection is auditable even when
// a strategy declares a single method.
type StopLevels struct {
	Stop         float64 `json:"stop"`
	Method       string  `json:"method"`
	ATRStop      float64 `json:"atr_stop"`
	PercentStop  float64 `json:"percent_stop"`
	SRStop       float64 `json:"sr_stop"`
	StopDistance float64 `json:"stop_distance"`
	RiskPct      float64 `json:"risk_pct"`
}

// DynamicStop computes the ATR-multiple, percent-of-price and
// support/resistance candidates, then selects per the declared method. An
// unknown method falls back to the most conservative candidate (tightest for
// longs, i.e. the highest stop below entry).
func DynamicStop(entry, atr float64, atrMultiplier, percentStop float64, srLevel float64, side, method string) StopLevels {
	out := StopLevels{Method: method}

	dist := atr * atrMultiplier
	if side == LongSide {
		out.ATRStop = entry - dist
		out.PercentStop = entry * (1 - percentStop)
		if srLevel > 0 {
			out.SRStop = srLevel * 0.99
		}
	} else {
		out.ATRStop = entry + dist
		out.PercentStop = entry * (1 + percentStop)
		if srLevel > 0 {
			out.SRStop = srLevel * 1.01
		}
	}

	switch method {
	case StopMethodATR:
		out.Stop = out.ATRStop
	case StopMethodPercent:
		out.Stop = out.PercentStop
	case StopMethodSR:
		if out.SRStop > 0 {
			out.Stop = out.SRStop
		} else {
			out.Stop = out.ATRStop
			out.Method = StopMethodATR
		}
	default:
		out.Stop = conservativeStop(side, out.ATRStop, out.PercentStop, out.SRStop)
		out.Method = "conservative"
	}

	if side == LongSide {
		out.StopDistance = entry - out.Stop
	} else {
		out.StopDistance = out.Stop - entry
	}
	if entry > 0 {
		out.RiskPct = out.StopDistance / entry * 100
	}
	return out
}

func conservativeStop(side string, candidates ...float64) float64 {
	out := 0.0
	for _, c := range candidates {
		if c <= 0 {
			continue
		}
		if out == 0 {
			out = c
			continue
		}
		if side == LongSide && c > out {
			out = c
		}
		if side == ShortSide && c < out {
			out = c
		}
	}
	return out
}

// TargetPrice derives the target from riskDistance*riskRewardRatio, clamped
// just inside the opposing support/resistance level when one is supplied.
func TargetPrice(entry, stop, riskRewardRatio, srLevel float64, side string) float64 {
	riskDistance := entry - stop
	if side == ShortSide {
		riskDistance = stop - entry
	}
	if riskDistance <= 0 {
		return 0
	}
	reward := riskDistance * riskRewardRatio

	if side == LongSide {
		target := entry + reward
		if srLevel > entry && target > srLevel*0.99 {
			target = srLevel * 0.99
		}
		return target
	}
	target := entry - reward
	if srLevel > 0 && srLevel < entry && target < srLevel*1.01 {
		target = srLevel * 1.01
	}
	return target
}
