package strategy

import (
	"encoding/json"
	"fmt"

	"tradesignal/internal/models"
	"tradesignal/internal/risk"
	"tradesignal/internal/trading"
)

// MomentumBreakout enters in the direction of a resistance/support break
// backed by rate-of-change momentum.
type MomentumBreakout struct{}

type momentumParams struct {
	MinMomentumPct float64 `json:"min_momentum_pct"`
	MaxRSI         float64 `json:"max_rsi"`
	MinRSI         float64 `json:"min_rsi"`
	ATRMultiplier  float64 `json:"atr_multiplier"`
	RiskReward     float64 `json:"risk_reward"`
	BaseConfidence float64 `json:"base_confidence"`
}

func (s *MomentumBreakout) Family() string { return LogicMomentumBreakout }

func (s *MomentumBreakout) DefaultParams() json.RawMessage {
	return json.RawMessage(`{"min_momentum_pct":2.0,"max_rsi":78,"min_rsi":22,"atr_multiplier":1.5,"risk_reward":2.0,"base_confidence":0.5}`)
}

func (s *MomentumBreakout) ValidateParams(raw json.RawMessage) error {
	p, err := s.parseParams(raw)
	if err != nil {
		return err
	}
	if p.ATRMultiplier <= 0 || p.RiskReward <= 0 {
		return fmt.Errorf("%w: atr_multiplier and risk_reward must be positive", trading.ErrInvalidParameters)
	}
	if p.MinRSI >= p.MaxRSI {
		return fmt.Errorf("%w: min_rsi must be below max_rsi", trading.ErrInvalidParameters)
	}
	return nil
}

func (s *MomentumBreakout) parseParams(raw json.RawMessage) (momentumParams, error) {
	var p momentumParams
	_ = json.Unmarshal(s.DefaultParams(), &p)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, fmt.Errorf("%w: %v", trading.ErrInvalidParameters, err)
		}
	}
	return p, nil
}

func (s *MomentumBreakout) Generate(in GenInput) ([]models.Signal, error) {
	p, err := s.parseParams(in.Params)
	if err != nil {
		return nil, err
	}
	f := in.Features
	if f.Close <= 0 || f.ATR <= 0 {
		return nil, nil
	}

	var side string
	switch {
	case f.Resistance > 0 && f.Close > f.Resistance && f.MomentumPct >= p.MinMomentumPct && f.RSI < p.MaxRSI:
		side = risk.LongSide
	case f.Support > 0 && f.Close < f.Support && f.MomentumPct <= -p.MinMomentumPct && f.RSI > p.MinRSI:
		side = risk.ShortSide
	default:
		return nil, nil
	}

	srLevel := f.Resistance // broken resistance becomes support for longs
	if side == risk.ShortSide {
		srLevel = f.Support
	}
	stops := risk.DynamicStop(f.Close, f.ATR, p.ATRMultiplier, 0.05, srLevel, side, risk.StopMethodSR)
	if stops.StopDistance <= 0 {
		return nil, nil
	}
	// No clamp level above a fresh breakout; pure risk-reward target.
	target := risk.TargetPrice(f.Close, stops.Stop, p.RiskReward, 0, side)

	momStrength := f.MomentumPct
	if side == risk.ShortSide {
		momStrength = -momStrength
	}
	conf := clamp01(p.BaseConfidence + momStrength*0.02 + f.DepthImbalance*0.1 - f.SpreadBps*0.002)

	return []models.Signal{
		newSignal(in, side, f.Close, stops, target, conf, map[string]any{
			"momentum_pct": f.MomentumPct,
			"rsi":          f.RSI,
		}),
	}, nil
}
