package screener

import (
	"errors"
	"fmt"
	"testing"

	"tradesignal/internal/config"
	"tradesignal/internal/features"
)

func screenConfig() config.ScreenerConfig {
	return config.ScreenerConfig{
		MinAvgDollarVolume: 5_000_000,
		MinMomentumPct:     -15,
		MaxMomentumPct:     40,
		MinATRPct:          0.75,
		MaxATRPct:          8.0,
		MaxSpreadBps:       30,
		MaxDepthImbalance:  0.85,
		QualityThreshold:   0.45,
		WeightLiquidity:    0.3,
		WeightMomentum:     0.3,
		WeightVolatility:   0.2,
		WeightExecQuality:  0.2,
	}
}

func goodFeatures(symbol string) *features.FeatureSet {
	return &features.FeatureSet{
		Symbol:         symbol,
		AvgDollarVol:   20_000_000,
		MomentumPct:    12,
		ATRPct:         4,
		SpreadBps:      5,
		DepthImbalance: 0.1,
		HasQuote:       true,
	}
}

func TestScreen_FunnelCountsSum(t *testing.T) {
	cands := []Candidate{
		{Symbol: "ERR", Err: errors.New("fetch failed")},
		{Symbol: "THIN", Features: func() *features.FeatureSet {
			f := goodFeatures("THIN")
			f.AvgDollarVol = 100_000
			return f
		}()},
		{Symbol: "PUMP", Features: func() *features.FeatureSet {
			f := goodFeatures("PUMP")
			f.MomentumPct = 80
			return f
		}()},
		{Symbol: "DEAD", Features: func() *features.FeatureSet {
			f := goodFeatures("DEAD")
			f.ATRPct = 0.1
			return f
		}()},
		{Symbol: "WIDE", Features: func() *features.FeatureSet {
			f := goodFeatures("WIDE")
			f.SpreadBps = 90
			return f
		}()},
		{Symbol: "GOOD", Features: goodFeatures("GOOD")},
	}

	res := Screen(cands, screenConfig())
	f := res.Funnel
	if f.UniverseSize != 6 {
		t.Fatalf("universe=%d want=6", f.UniverseSize)
	}
	if f.FailedData != 1 || f.FailedLiquidity != 1 || f.FailedMomentum != 1 || f.FailedVol != 1 || f.FailedMicro != 1 {
		t.Fatalf("funnel=%+v want one failure per stage", f)
	}
	sum := f.FailedData + f.FailedLiquidity + f.FailedMomentum + f.FailedVol + f.FailedMicro + f.BelowThreshold + f.Passed
	if sum != f.UniverseSize {
		t.Fatalf("funnel sum=%d want=%d", sum, f.UniverseSize)
	}
	if f.Passed != 1 || len(res.Scored) != 1 || res.Scored[0].Symbol != "GOOD" {
		t.Fatalf("scored=%v want [GOOD]", res.Scored)
	}
	if _, ok := res.Errors["ERR"]; !ok {
		t.Fatalf("errors=%v want entry for ERR", res.Errors)
	}
}

func TestScreen_AllFailIsNotError(t *testing.T) {
	cands := []Candidate{
		{Symbol: "A", Err: errors.New("no data")},
		{Symbol: "B", Err: errors.New("no data")},
	}
	res := Screen(cands, screenConfig())
	if res.Funnel.Passed != 0 || len(res.Scored) != 0 {
		t.Fatalf("res=%+v want empty pass set", res)
	}
	if res.Funnel.FailedData != 2 {
		t.Fatalf("failedData=%d want=2", res.Funnel.FailedData)
	}
}

func TestScreen_EmptyUniverse(t *testing.T) {
	res := Screen(nil, screenConfig())
	if res.Funnel.UniverseSize != 0 || res.Funnel.Passed != 0 {
		t.Fatalf("funnel=%+v want zeroes", res.Funnel)
	}
}

func TestScreen_QualityThreshold(t *testing.T) {
	// Barely-surviving symbol: thin liquidity and wide spread drag the
	// composite score under the threshold.
	f := goodFeatures("MEH")
	f.AvgDollarVol = 5_000_001
	f.SpreadBps = 29
	f.MomentumPct = 39
	f.ATRPct = 7.9

	res := Screen([]Candidate{{Symbol: "MEH", Features: f}}, screenConfig())
	if res.Funnel.BelowThreshold != 1 {
		t.Fatalf("belowThreshold=%d want=1 (funnel=%+v)", res.Funnel.BelowThreshold, res.Funnel)
	}
	if res.Funnel.Passed != 0 {
		t.Fatalf("passed=%d want=0", res.Funnel.Passed)
	}
}

func TestScreen_DeterministicOrdering(t *testing.T) {
	cands := make([]Candidate, 0, 4)
	for _, sym := range []string{"DDD", "AAA", "CCC", "BBB"} {
		cands = append(cands, Candidate{Symbol: sym, Features: goodFeatures(sym)})
	}
	first := Screen(cands, screenConfig())
	second := Screen(cands, screenConfig())
	if len(first.Scored) != 4 {
		t.Fatalf("scored=%d want=4", len(first.Scored))
	}
	for i := range first.Scored {
		if first.Scored[i] != second.Scored[i] {
			t.Fatalf("ordering not deterministic at %d: %+v vs %+v", i, first.Scored[i], second.Scored[i])
		}
	}
	// Identical scores fall back to symbol order.
	want := []string{"AAA", "BBB", "CCC", "DDD"}
	for i, s := range first.Scored {
		if s.Symbol != want[i] {
			t.Fatalf("order=%v want=%v", symbols(first.Scored), want)
		}
	}
}

func symbols(scored []ScoredSymbol) []string {
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.Symbol
	}
	return out
}

func TestBandScore(t *testing.T) {
	cases := []struct {
		v, lo, hi, want float64
	}{
		{12.5, -15, 40, 1},
		{-15, -15, 40, 0},
		{40, -15, 40, 0},
		{100, -15, 40, 0},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("v=%.1f", tc.v), func(t *testing.T) {
			if got := bandScore(tc.v, tc.lo, tc.hi); got != tc.want {
				t.Fatalf("got=%.4f want=%.4f", got, tc.want)
			}
		})
	}
}
