package strategy

import (
	"encoding/json"
	"fmt"

	"tradesignal/internal/features"
	"tradesignal/internal/models"
	"tradesignal/internal/risk"
	"tradesignal/internal/trading"
)

// The rule grammar is deliberately small: a side, a conjunction of
// field-op-value comparisons over FeatureSet fields, and stop/target knobs.
// There is no way to express loops, calls or user code.

type RuleCondition struct {
	Field string  `json:"field"`
	Op    string  `json:"op"`
	Value float64 `json:"value"`
	// ValueField compares against another feature instead of a constant.
	ValueField string `json:"value_field,omitempty"`
}

type RuleSet struct {
	Side       string          `json:"side"`
	All        []RuleCondition `json:"all"`
	StopMethod string          `json:"stop_method,omitempty"`
}

var ruleFields = map[string]func(features.FeatureSet) float64{
	"close":           func(f features.FeatureSet) float64 { return f.Close },
	"atr":             func(f features.FeatureSet) float64 { return f.ATR },
	"atr_pct":         func(f features.FeatureSet) float64 { return f.ATRPct },
	"rsi":             func(f features.FeatureSet) float64 { return f.RSI },
	"ema20":           func(f features.FeatureSet) float64 { return f.EMA20 },
	"sma20":           func(f features.FeatureSet) float64 { return f.SMA20 },
	"vwap":            func(f features.FeatureSet) float64 { return f.VWAP },
	"momentum_pct":    func(f features.FeatureSet) float64 { return f.MomentumPct },
	"boll_width":      func(f features.FeatureSet) float64 { return f.BollWidth },
	"support":         func(f features.FeatureSet) float64 { return f.Support },
	"resistance":      func(f features.FeatureSet) float64 { return f.Resistance },
	"avg_dollar_vol":  func(f features.FeatureSet) float64 { return f.AvgDollarVol },
	"session_high":    func(f features.FeatureSet) float64 { return f.SessionHigh },
	"session_low":     func(f features.FeatureSet) float64 { return f.SessionLow },
	"spread_bps":      func(f features.FeatureSet) float64 { return f.SpreadBps },
	"depth_imbalance": func(f features.FeatureSet) float64 { return f.DepthImbalance },
}

var ruleOps = map[string]func(a, b float64) bool{
	"lt":  func(a, b float64) bool { return a < b },
	"lte": func(a, b float64) bool { return a <= b },
	"gt":  func(a, b float64) bool { return a > b },
	"gte": func(a, b float64) bool { return a >= b },
}

// ParseRules validates a custom rule payload against the closed field and
// operator sets. It never executes anything.
func ParseRules(raw json.RawMessage) (*RuleSet, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: custom strategy requires a rule payload", trading.ErrInvalidParameters)
	}
	var rs RuleSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("%w: %v", trading.ErrInvalidParameters, err)
	}
	if rs.Side != risk.LongSide && rs.Side != risk.ShortSide {
		return nil, fmt.Errorf("%w: side must be %q or %q", trading.ErrInvalidParameters, risk.LongSide, risk.ShortSide)
	}
	if len(rs.All) == 0 {
		return nil, fmt.Errorf("%w: at least one condition is required", trading.ErrInvalidParameters)
	}
	for i, c := range rs.All {
		if _, ok := ruleFields[c.Field]; !ok {
			return nil, fmt.Errorf("%w: condition %d references unknown field %q", trading.ErrInvalidParameters, i, c.Field)
		}
		if _, ok := ruleOps[c.Op]; !ok {
			return nil, fmt.Errorf("%w: condition %d uses unknown op %q", trading.ErrInvalidParameters, i, c.Op)
		}
		if c.ValueField != "" {
			if _, ok := ruleFields[c.ValueField]; !ok {
				return nil, fmt.Errorf("%w: condition %d references unknown field %q", trading.ErrInvalidParameters, i, c.ValueField)
			}
		}
	}
	switch rs.StopMethod {
	case "", risk.StopMethodATR, risk.StopMethodPercent, risk.StopMethodSR:
	default:
		return nil, fmt.Errorf("%w: unknown stop method %q", trading.ErrInvalidParameters, rs.StopMethod)
	}
	return &rs, nil
}

func (rs *RuleSet) Match(f features.FeatureSet) bool {
	for _, c := range rs.All {
		lhs := ruleFields[c.Field](f)
		rhs := c.Value
		if c.ValueField != "" {
			rhs = ruleFields[c.ValueField](f)
		}
		if !ruleOps[c.Op](lhs, rhs) {
			return false
		}
	}
	return true
}

// RuleStrategy evaluates user-authored declarative rules.
type RuleStrategy struct{}

type ruleParams struct {
	ATRMultiplier  float64 `json:"atr_multiplier"`
	PercentStop    float64 `json:"percent_stop"`
	RiskReward     float64 `json:"risk_reward"`
	BaseConfidence float64 `json:"base_confidence"`
}

func (s *RuleStrategy) Family() string { return LogicCustomRules }

func (s *RuleStrategy) DefaultParams() json.RawMessage {
	return json.RawMessage(`{"atr_multiplier":1.5,"percent_stop":0.05,"risk_reward":2.0,"base_confidence":0.5}`)
}

func (s *RuleStrategy) ValidateParams(raw json.RawMessage) error {
	p, err := s.parseParams(raw)
	if err != nil {
		return err
	}
	if p.ATRMultiplier <= 0 || p.PercentStop <= 0 || p.RiskReward <= 0 {
		return fmt.Errorf("%w: stop and reward parameters must be positive", trading.ErrInvalidParameters)
	}
	return nil
}

func (s *RuleStrategy) parseParams(raw json.RawMessage) (ruleParams, error) {
	var p ruleParams
	_ = json.Unmarshal(s.DefaultParams(), &p)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, fmt.Errorf("%w: %v", trading.ErrInvalidParameters, err)
		}
	}
	return p, nil
}

func (s *RuleStrategy) Generate(in GenInput) ([]models.Signal, error) {
	rs, err := ParseRules(in.Rules)
	if err != nil {
		return nil, err
	}
	p, err := s.parseParams(in.Params)
	if err != nil {
		return nil, err
	}
	f := in.Features
	if f.Close <= 0 || f.ATR <= 0 {
		return nil, nil
	}
	if !rs.Match(f) {
		return nil, nil
	}

	srLevel := f.Support
	clampSR := f.Resistance
	if rs.Side == risk.ShortSide {
		srLevel = f.Resistance
		clampSR = f.Support
	}
	method := rs.StopMethod
	if method == "" {
		method = risk.StopMethodATR
	}
	stops := risk.DynamicStop(f.Close, f.ATR, p.ATRMultiplier, p.PercentStop, srLevel, rs.Side, method)
	if stops.StopDistance <= 0 {
		return nil, nil
	}
	target := risk.TargetPrice(f.Close, stops.Stop, p.RiskReward, clampSR, rs.Side)

	conf := clamp01(p.BaseConfidence - f.SpreadBps*0.002)

	return []models.Signal{
		newSignal(in, rs.Side, f.Close, stops, target, conf, map[string]any{
			"rule_conditions": len(rs.All),
		}),
	}, nil
}
