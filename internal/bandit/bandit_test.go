package bandit

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"tradesignal/internal/models"
	"tradesignal/internal/trading"
)

func arms() []models.BanditArm {
	return []models.BanditArm{
		{Family: "opening_range_breakout", Alpha: 1, Beta: 1},
		{Family: "momentum_breakout", Alpha: 1, Beta: 1},
		{Family: "mean_reversion", Alpha: 1, Beta: 1},
	}
}

func TestSelect_NilRand(t *testing.T) {
	s := NewSelector("", 30)
	_, _, err := s.Select(arms(), Context{}, nil)
	if !errors.Is(err, trading.ErrInvalidParameters) {
		t.Fatalf("err=%v want ErrInvalidParameters", err)
	}
}

func TestSelect_SeededReproducible(t *testing.T) {
	s := NewSelector("", 30)
	ctx := Context{Trend: TrendSideways, Volatility: VolNormal}

	famA, drawA, err := s.Select(arms(), ctx, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	famB, drawB, err := s.Select(arms(), ctx, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if famA != famB || drawA != drawB {
		t.Fatalf("got (%s,%.6f) vs (%s,%.6f) want identical", famA, drawA, famB, drawB)
	}
}

func TestSelect_StrongArmDominates(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	testArms := []models.BanditArm{
		{Family: "strong", Alpha: 90, Beta: 10},
		{Family: "weak", Alpha: 10, Beta: 90},
	}
	s := NewSelector("", 30)
	wins := 0
	for i := 0; i < 200; i++ {
		fam, _, err := s.Select(testArms, Context{Volatility: VolNormal}, rng)
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if fam == "strong" {
			wins++
		}
	}
	if wins < 180 {
		t.Fatalf("strong arm chosen %d/200, want >=180", wins)
	}
}

func TestEligible_LowVolGate(t *testing.T) {
	s := NewSelector("opening_range_breakout,momentum_breakout", 30)
	ctx := Context{Volatility: VolLow}
	if s.Eligible("opening_range_breakout", ctx) {
		t.Fatalf("breakout eligible in low vol, want gated")
	}
	if !s.Eligible("mean_reversion", ctx) {
		t.Fatalf("mean_reversion gated in low vol, want eligible")
	}
	ctx.Volatility = VolNormal
	if !s.Eligible("opening_range_breakout", ctx) {
		t.Fatalf("breakout gated in normal vol, want eligible")
	}
}

func TestEligible_HighVIXGate(t *testing.T) {
	s := NewSelector("", 30)
	ctx := Context{Volatility: VolNormal, VIX: 35}
	if s.Eligible("opening_range_breakout", ctx) {
		t.Fatalf("ORB eligible at VIX 35, want gated")
	}
	if !s.Eligible("mean_reversion", ctx) {
		t.Fatalf("mean_reversion gated at VIX 35, want eligible")
	}
}

func TestSelect_NoEligibleArms(t *testing.T) {
	s := NewSelector("opening_range_breakout,momentum_breakout,mean_reversion", 30)
	_, _, err := s.Select(arms(), Context{Volatility: VolLow}, rand.New(rand.NewSource(1)))
	if !errors.Is(err, trading.ErrDataUnavailable) {
		t.Fatalf("err=%v want ErrDataUnavailable", err)
	}
}

func TestRewardUpdate(t *testing.T) {
	arm := &models.BanditArm{Family: "mean_reversion", Alpha: 1, Beta: 1}

	if err := RewardUpdate(arm, 150.0); err != nil {
		t.Fatalf("err=%v", err)
	}
	if arm.Alpha != 2 || arm.Beta != 1 || arm.Wins != 1 {
		t.Fatalf("arm=%+v want alpha=2 beta=1 wins=1", arm)
	}

	// Zero P&L counts as a loss.
	if err := RewardUpdate(arm, 0); err != nil {
		t.Fatalf("err=%v", err)
	}
	if arm.Beta != 2 || arm.Losses != 1 {
		t.Fatalf("arm=%+v want beta=2 losses=1", arm)
	}
	if arm.Confidence != 4 {
		t.Fatalf("confidence=%.1f want=4", arm.Confidence)
	}
	if arm.WinRate != 0.5 {
		t.Fatalf("winRate=%.4f want=0.5", arm.WinRate)
	}
}

func TestRewardUpdate_NonFinite(t *testing.T) {
	arm := &models.BanditArm{Family: "x", Alpha: 3, Beta: 2}
	for _, pnl := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := RewardUpdate(arm, pnl); !errors.Is(err, trading.ErrBanditUpdate) {
			t.Fatalf("pnl=%v err=%v want ErrBanditUpdate", pnl, err)
		}
	}
	if arm.Alpha != 3 || arm.Beta != 2 {
		t.Fatalf("arm=%+v want counters untouched", arm)
	}
}

func TestReset(t *testing.T) {
	arm := &models.BanditArm{Family: "x", Alpha: 40, Beta: 12, Wins: 39, Losses: 11, WinRate: 0.7, Confidence: 52}
	Reset(arm)
	if arm.Alpha != 1 || arm.Beta != 1 || arm.Wins != 0 || arm.Losses != 0 {
		t.Fatalf("arm=%+v want Beta(1,1) prior", arm)
	}
	if arm.WinRate != 0.5 || arm.Confidence != 2 {
		t.Fatalf("arm=%+v want winRate=0.5 confidence=2", arm)
	}
}

func TestSampleBeta_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 1000; i++ {
		v := sampleBeta(rng, 2, 5)
		if v < 0 || v > 1 {
			t.Fatalf("draw=%.6f out of [0,1]", v)
		}
	}
}

func TestSampleBeta_MeanApproximate(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	var sum float64
	n := 20_000
	for i := 0; i < n; i++ {
		sum += sampleBeta(rng, 8, 2)
	}
	mean := sum / float64(n)
	if math.Abs(mean-0.8) > 0.02 {
		t.Fatalf("mean=%.4f want ~0.8", mean)
	}
}

func TestClassifyContext(t *testing.T) {
	cases := []struct {
		momentum, atrPct float64
		trend, vol       string
	}{
		{2, 0.5, TrendUp, VolLow},
		{-2, 2, TrendDown, VolNormal},
		{0, 5, TrendSideways, VolHigh},
	}
	for _, tc := range cases {
		ctx := ClassifyContext(tc.momentum, tc.atrPct, 0, 600)
		if ctx.Trend != tc.trend || ctx.Volatility != tc.vol {
			t.Fatalf("ClassifyContext(%.1f, %.1f)=%+v want trend=%s vol=%s",
				tc.momentum, tc.atrPct, ctx, tc.trend, tc.vol)
		}
	}
}
