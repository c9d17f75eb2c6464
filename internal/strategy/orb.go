package strategy

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"tradesignal/internal/models"
	"tradesignal/internal/risk"
	"tradesignal/internal/trading"
)

// OpeningRangeBreakout fires when price clears the session's opening range
// with volume-weighted confirmation.
type OpeningRangeBreakout struct{}

type orbParams struct {
	ATRMultiplier  float64 `json:"atr_multiplier"`
	RiskReward     float64 `json:"risk_reward"`
	MinRangePct    float64 `json:"min_range_pct"`
	RequireVWAP    bool    `json:"require_vwap"`
	BaseConfidence float64 `json:"base_confidence"`
}

func (s *OpeningRangeBreakout) Family() string { return LogicOpeningRangeBreakout }

func (s *OpeningRangeBreakout) DefaultParams() json.RawMessage {
	return json.RawMessage(`{"atr_multiplier":1.5,"risk_reward":2.0,"min_range_pct":0.2,"require_vwap":true,"base_confidence":0.5}`)
}

func (s *OpeningRangeBreakout) ValidateParams(raw json.RawMessage) error {
	p, err := s.parseParams(raw)
	if err != nil {
		return err
	}
	if p.ATRMultiplier <= 0 || p.RiskReward <= 0 {
		return fmt.Errorf("%w: atr_multiplier and risk_reward must be positive", trading.ErrInvalidParameters)
	}
	if p.BaseConfidence < 0 || p.BaseConfidence > 1 {
		return fmt.Errorf("%w: base_confidence must be in [0,1]", trading.ErrInvalidParameters)
	}
	return nil
}

func (s *OpeningRangeBreakout) parseParams(raw json.RawMessage) (orbParams, error) {
	var p orbParams
	_ = json.Unmarshal(s.DefaultParams(), &p)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, fmt.Errorf("%w: %v", trading.ErrInvalidParameters, err)
		}
	}
	return p, nil
}

func (s *OpeningRangeBreakout) Generate(in GenInput) ([]models.Signal, error) {
	p, err := s.parseParams(in.Params)
	if err != nil {
		return nil, err
	}
	f := in.Features

	rangeWidth := f.SessionHigh - f.SessionLow
	if f.Close <= 0 || rangeWidth <= 0 {
		return nil, nil
	}
	if rangeWidth/f.Close*100 < p.MinRangePct {
		return nil, nil
	}

	var side string
	switch {
	case f.Close > f.SessionHigh && (!p.RequireVWAP || f.Close > f.VWAP):
		side = risk.LongSide
	case f.Close < f.SessionLow && (!p.RequireVWAP || f.Close < f.VWAP):
		side = risk.ShortSide
	default:
		return nil, nil
	}

	srLevel := f.SessionLow
	clampSR := f.Resistance
	if side == risk.ShortSide {
		srLevel = f.SessionHigh
		clampSR = f.Support
	}
	stops := risk.DynamicStop(f.Close, f.ATR, p.ATRMultiplier, 0.05, srLevel, side, risk.StopMethodATR)
	if stops.StopDistance <= 0 {
		return nil, nil
	}
	target := risk.TargetPrice(f.Close, stops.Stop, p.RiskReward, clampSR, side)

	breakout := (f.Close - f.SessionHigh) / f.Close * 100
	if side == risk.ShortSide {
		breakout = (f.SessionLow - f.Close) / f.Close * 100
	}
	conf := clamp01(p.BaseConfidence + breakout*0.1 + f.MomentumPct*0.005 - f.SpreadBps*0.002)

	return []models.Signal{
		newSignal(in, side, f.Close, stops, target, conf, map[string]any{
			"session_high": f.SessionHigh,
			"session_low":  f.SessionLow,
			"breakout_pct": breakout,
		}),
	}, nil
}

func newSignal(in GenInput, side string, entry float64, stops risk.StopLevels, target, confidence float64, extra map[string]any) models.Signal {
	sigType := models.SignalEntryLong
	if side == risk.ShortSide {
		sigType = models.SignalEntryShort
	}
	meta := map[string]any{
		"stop_method":  stops.Method,
		"atr_stop":     stops.ATRStop,
		"percent_stop": stops.PercentStop,
		"sr_stop":      stops.SRStop,
	}
	for k, v := range extra {
		meta[k] = v
	}
	rawMeta, _ := json.Marshal(meta)

	stop := decimal.NewFromFloat(stops.Stop)
	tgt := decimal.NewFromFloat(target)
	return models.Signal{
		StrategyVersionID: in.StrategyVersionID,
		Symbol:            in.Symbol,
		Timeframe:         in.Timeframe,
		SignalType:        sigType,
		Price:             decimal.NewFromFloat(entry),
		Confidence:        confidence,
		Stop:              &stop,
		Target:            &tgt,
		Metadata:          datatypes.JSON(rawMeta),
		CreatedAt:         in.AsOf,
	}
}
