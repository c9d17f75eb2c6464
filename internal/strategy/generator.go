// Package strategy maps versioned strategy definitions onto a closed set of
// signal generator families. Generators are pure: identical inputs produce
// identical signals, bar for bar, so live and backtest paths share them.
package strategy

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tradesignal/internal/features"
	"tradesignal/internal/models"
	"tradesignal/internal/trading"
)

// Logic keys are the closed set of algorithm families. User-authored logic
// goes through LogicCustomRules and its declarative grammar only.
const (
	LogicOpeningRangeBreakout = "opening_range_breakout"
	LogicMomentumBreakout     = "momentum_breakout"
	LogicMeanReversion        = "mean_reversion"
	LogicCustomRules          = "custom_rules"
)

// GenInput carries everything a generator may read. AsOf is the timestamp of
// the last bar, never the wall clock.
type GenInput struct {
	StrategyVersionID uint64
	Symbol            string
	Timeframe         string
	AsOf              time.Time
	Features          features.FeatureSet
	Params            json.RawMessage
	Rules             json.RawMessage
}

type Generator interface {
	Family() string
	DefaultParams() json.RawMessage
	// ValidateParams rejects schema-invalid params synchronously, before a
	// version can be enabled or backtested.
	ValidateParams(raw json.RawMessage) error
	Generate(in GenInput) ([]models.Signal, error)
}

type Registry struct {
	byKey map[string]Generator
}

func NewRegistry(gens ...Generator) *Registry {
	byKey := make(map[string]Generator, len(gens))
	for _, g := range gens {
		if g != nil && g.Family() != "" {
			byKey[g.Family()] = g
		}
	}
	return &Registry{byKey: byKey}
}

func DefaultGenerators() []Generator {
	return []Generator{
		&OpeningRangeBreakout{},
		&MomentumBreakout{},
		&MeanReversion{},
		&RuleStrategy{},
	}
}

func (r *Registry) Resolve(logicKey string) (Generator, error) {
	if r == nil {
		return nil, trading.ErrInvalidParameters
	}
	gen, ok := r.byKey[strings.TrimSpace(logicKey)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown logic key %q", trading.ErrInvalidParameters, logicKey)
	}
	return gen, nil
}

func (r *Registry) Families() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		out = append(out, k)
	}
	return out
}

// Validate checks a version's logic key, params and rule payload without
// executing anything.
func (r *Registry) Validate(logicKey string, params, rules json.RawMessage) error {
	gen, err := r.Resolve(logicKey)
	if err != nil {
		return err
	}
	if err := gen.ValidateParams(params); err != nil {
		return err
	}
	if logicKey == LogicCustomRules {
		if _, err := ParseRules(rules); err != nil {
			return err
		}
	}
	return nil
}

// BindParams layers generator defaults, operator config defaults and user
// overrides, in that precedence order.
func BindParams(gen Generator, configDefaults map[string]any, versionParams, userOverrides json.RawMessage) (json.RawMessage, error) {
	base := map[string]any{}
	if gen != nil {
		_ = json.Unmarshal(gen.DefaultParams(), &base)
	}
	if gen != nil {
		if raw, ok := configDefaults[gen.Family()]; ok {
			if m, ok := raw.(map[string]any); ok {
				for k, v := range m {
					base[k] = v
				}
			}
		}
	}
	for _, layer := range []json.RawMessage{versionParams, userOverrides} {
		if len(layer) == 0 {
			continue
		}
		override := map[string]any{}
		if err := json.Unmarshal(layer, &override); err != nil {
			return nil, fmt.Errorf("%w: %v", trading.ErrInvalidParameters, err)
		}
		for k, v := range override {
			base[k] = v
		}
	}
	raw, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trading.ErrInvalidParameters, err)
	}
	if gen != nil {
		if err := gen.ValidateParams(raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
