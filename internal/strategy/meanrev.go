package strategy

import (
	"encoding/json"
	"fmt"
	"math"

	"tradesignal/internal/models"
	"tradesignal/internal/risk"
	"tradesignal/internal/trading"
)

// MeanReversion fades RSI extremes when price has stretched away from VWAP.
type MeanReversion struct{}

type meanRevParams struct {
	OversoldRSI    float64 `json:"oversold_rsi"`
	OverboughtRSI  float64 `json:"overbought_rsi"`
	MinStretchPct  float64 `json:"min_stretch_pct"`
	ATRMultiplier  float64 `json:"atr_multiplier"`
	RiskReward     float64 `json:"risk_reward"`
	BaseConfidence float64 `json:"base_confidence"`
}

func (s *MeanReversion) Family() string { return LogicMeanReversion }

func (s *MeanReversion) DefaultParams() json.RawMessage {
	return json.RawMessage(`{"oversold_rsi":30,"overbought_rsi":70,"min_stretch_pct":1.0,"atr_multiplier":2.0,"risk_reward":1.5,"base_confidence":0.5}`)
}

func (s *MeanReversion) ValidateParams(raw json.RawMessage) error {
	p, err := s.parseParams(raw)
	if err != nil {
		return err
	}
	if p.OversoldRSI >= p.OverboughtRSI {
		return fmt.Errorf("%w: oversold_rsi must be below overbought_rsi", trading.ErrInvalidParameters)
	}
	if p.ATRMultiplier <= 0 || p.RiskReward <= 0 {
		return fmt.Errorf("%w: atr_multiplier and risk_reward must be positive", trading.ErrInvalidParameters)
	}
	return nil
}

func (s *MeanReversion) parseParams(raw json.RawMessage) (meanRevParams, error) {
	var p meanRevParams
	_ = json.Unmarshal(s.DefaultParams(), &p)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, fmt.Errorf("%w: %v", trading.ErrInvalidParameters, err)
		}
	}
	return p, nil
}

func (s *MeanReversion) Generate(in GenInput) ([]models.Signal, error) {
	p, err := s.parseParams(in.Params)
	if err != nil {
		return nil, err
	}
	f := in.Features
	if f.Close <= 0 || f.VWAP <= 0 || f.ATR <= 0 {
		return nil, nil
	}

	stretchPct := (f.Close - f.VWAP) / f.VWAP * 100

	var side string
	switch {
	case f.RSI > 0 && f.RSI <= p.OversoldRSI && stretchPct <= -p.MinStretchPct:
		side = risk.LongSide
	case f.RSI >= p.OverboughtRSI && stretchPct >= p.MinStretchPct:
		side = risk.ShortSide
	default:
		return nil, nil
	}

	srLevel := f.Support
	clampSR := f.Resistance
	if side == risk.ShortSide {
		srLevel = f.Resistance
		clampSR = f.Support
	}
	// Wider ATR stops: reversion trades ride out noise around the extreme.
	stops := risk.DynamicStop(f.Close, f.ATR, p.ATRMultiplier, 0.05, srLevel, side, risk.StopMethodATR)
	if stops.StopDistance <= 0 {
		return nil, nil
	}
	target := risk.TargetPrice(f.Close, stops.Stop, p.RiskReward, clampSR, side)

	rsiExtreme := p.OversoldRSI - f.RSI
	if side == risk.ShortSide {
		rsiExtreme = f.RSI - p.OverboughtRSI
	}
	conf := clamp01(p.BaseConfidence + rsiExtreme*0.01 + math.Abs(stretchPct)*0.02 - f.SpreadBps*0.002)

	return []models.Signal{
		newSignal(in, side, f.Close, stops, target, conf, map[string]any{
			"vwap_stretch_pct": stretchPct,
			"rsi":              f.RSI,
		}),
	}, nil
}
