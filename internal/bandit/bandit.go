// Package bandit selects strategy families by Thompson sampling over Beta
// posteriors. Context gates which arms are eligible; it does not condition
// the posteriors themselves.
package bandit

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"tradesignal/internal/models"
	"tradesignal/internal/trading"
)

// Context describes the market regime at selection time.
type Context struct {
	Trend       string  // "up", "down", "sideways"
	Volatility  string  // "low", "normal", "high"
	VIX         float64 // 0 when unknown
	MinuteOfDay int
}

const (
	TrendUp       = "up"
	TrendDown     = "down"
	TrendSideways = "sideways"

	VolLow    = "low"
	VolNormal = "normal"
	VolHigh   = "high"
)

type Selector struct {
	// lowVolGate lists families that sit out when volatility is low, e.g.
	// breakout styles that need expansion to pay.
	lowVolGate map[string]bool
	highVIX    float64
}

func NewSelector(lowVolGateFamilies string, highVIXThreshold float64) *Selector {
	gate := map[string]bool{}
	for _, f := range strings.Split(lowVolGateFamilies, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			gate[f] = true
		}
	}
	if highVIXThreshold <= 0 {
		highVIXThreshold = 30
	}
	return &Selector{lowVolGate: gate, highVIX: highVIXThreshold}
}

// Eligible reports whether a family may be sampled under the given context.
func (s *Selector) Eligible(family string, ctx Context) bool {
	if s == nil {
		return true
	}
	if ctx.Volatility == VolLow && s.lowVolGate[family] {
		return false
	}
	if ctx.VIX >= s.highVIX && family == "opening_range_breakout" {
		return false
	}
	return true
}

// Select samples each eligible arm's Beta posterior and returns the family
// with the highest draw. The caller supplies the rand source so seeded runs
// reproduce exactly.
func (s *Selector) Select(arms []models.BanditArm, ctx Context, rng *rand.Rand) (string, float64, error) {
	if rng == nil {
		return "", 0, fmt.Errorf("%w: nil rand source", trading.ErrInvalidParameters)
	}
	best := ""
	bestDraw := -1.0
	for _, arm := range arms {
		if !s.Eligible(arm.Family, ctx) {
			continue
		}
		alpha, beta := arm.Alpha, arm.Beta
		if alpha < 1 {
			alpha = 1
		}
		if beta < 1 {
			beta = 1
		}
		draw := sampleBeta(rng, alpha, beta)
		if draw > bestDraw {
			best = arm.Family
			bestDraw = draw
		}
	}
	if best == "" {
		return "", 0, fmt.Errorf("%w: no eligible arms", trading.ErrDataUnavailable)
	}
	return best, bestDraw, nil
}

// RewardUpdate maps a realized P&L onto the Beta counters of one arm.
// Positive P&L increments alpha, everything else increments beta.
func RewardUpdate(arm *models.BanditArm, pnl float64) error {
	if arm == nil {
		return fmt.Errorf("%w: nil arm", trading.ErrBanditUpdate)
	}
	if math.IsNaN(pnl) || math.IsInf(pnl, 0) {
		return fmt.Errorf("%w: reward for %s is not finite", trading.ErrBanditUpdate, arm.Family)
	}
	if pnl > 0 {
		arm.Alpha++
		arm.Wins++
	} else {
		arm.Beta++
		arm.Losses++
	}
	arm.Confidence = arm.Alpha + arm.Beta
	arm.WinRate = arm.Alpha / arm.Confidence
	return nil
}

// Reset returns an arm to the uninformed Beta(1,1) prior.
func Reset(arm *models.BanditArm) {
	if arm == nil {
		return
	}
	arm.Alpha = 1
	arm.Beta = 1
	arm.Wins = 0
	arm.Losses = 0
	arm.WinRate = 0.5
	arm.Confidence = 2
}

// sampleBeta draws Beta(a,b) via two Gamma draws.
func sampleBeta(rng *rand.Rand, a, b float64) float64 {
	x := sampleGamma(rng, a)
	y := sampleGamma(rng, b)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws Gamma(shape,1) using Marsaglia and Tsang's method.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// ClassifyContext derives a selection context from broad-market features.
func ClassifyContext(momentumPct, atrPct, vix float64, minuteOfDay int) Context {
	ctx := Context{VIX: vix, MinuteOfDay: minuteOfDay}
	switch {
	case momentumPct > 0.5:
		ctx.Trend = TrendUp
	case momentumPct < -0.5:
		ctx.Trend = TrendDown
	default:
		ctx.Trend = TrendSideways
	}
	switch {
	case atrPct < 1.0:
		ctx.Volatility = VolLow
	case atrPct > 3.0:
		ctx.Volatility = VolHigh
	default:
		ctx.Volatility = VolNormal
	}
	return ctx
}
