package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesignal/internal/bandit"
	"tradesignal/internal/broker"
	"tradesignal/internal/config"
	"tradesignal/internal/marketdata"
	"tradesignal/internal/models"
)

// stubMarket feeds canned index history and quotes.
type stubMarket struct {
	bars    []marketdata.Bar
	barsErr error
	quote   marketdata.Quote
}

func (m *stubMarket) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]marketdata.Bar, error) {
	if m.barsErr != nil {
		return nil, m.barsErr
	}
	return m.bars, nil
}

func (m *stubMarket) GetQuote(ctx context.Context, symbol string) (marketdata.Quote, error) {
	return m.quote, nil
}

func (m *stubMarket) GetDepth(ctx context.Context, symbol string) (marketdata.DepthSnapshot, error) {
	return marketdata.DepthSnapshot{}, nil
}

// indexBars builds n flat bars whose range fixes the ATR, so the volatility
// bucket is fully determined by barRange.
func indexBars(n int, barRange float64) []marketdata.Bar {
	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	bars := make([]marketdata.Bar, n)
	for i := 0; i < n; i++ {
		bars[i] = marketdata.Bar{
			Symbol:    "SPY",
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      100,
			High:      100 + barRange/2,
			Low:       100 - barRange/2,
			Close:     100,
			Volume:    1_000_000,
		}
	}
	return bars
}

func newAutoTrader(repo *stubRepo, brk *stubBroker, market *stubMarket) *AutoTrader {
	return &AutoTrader{
		Repo:     repo,
		Broker:   brk,
		Market:   market,
		Selector: bandit.NewSelector("opening_range_breakout", 30),
		Cfg:      config.AutoTraderConfig{Enabled: true},
		BanditCfg: config.BanditConfig{
			IndexSymbol:         "SPY",
			ContextTimeframe:    "5m",
			ContextLookbackBars: 40,
		},
	}
}

func TestMarketContext_ClassifiesFromIndexFeatures(t *testing.T) {
	tests := []struct {
		name     string
		barRange float64
		wantVol  string
	}{
		{"quiet tape is low vol", 0.05, bandit.VolLow},
		{"ordinary tape is normal vol", 2.0, bandit.VolNormal},
		{"wide tape is high vol", 5.0, bandit.VolHigh},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			market := &stubMarket{bars: indexBars(40, tc.barRange)}
			auto := newAutoTrader(newStubRepo(), &stubBroker{}, market)

			got := auto.marketContext(context.Background())
			if got.Volatility != tc.wantVol {
				t.Fatalf("volatility=%s want=%s", got.Volatility, tc.wantVol)
			}
			if got.Trend != bandit.TrendSideways {
				t.Fatalf("trend=%s want=%s for a flat tape", got.Trend, bandit.TrendSideways)
			}
		})
	}
}

func TestMarketContext_NeutralWhenFeedDown(t *testing.T) {
	market := &stubMarket{barsErr: errors.New("feed down")}
	auto := newAutoTrader(newStubRepo(), &stubBroker{}, market)

	got := auto.marketContext(context.Background())
	if got.Volatility != bandit.VolNormal || got.Trend != bandit.TrendSideways {
		t.Fatalf("ctx=%+v want neutral fallback", got)
	}
}

func TestMarketContext_VIXFromQuote(t *testing.T) {
	market := &stubMarket{
		bars:  indexBars(40, 2.0),
		quote: marketdata.Quote{Symbol: "VIX", Last: 35},
	}
	auto := newAutoTrader(newStubRepo(), &stubBroker{}, market)
	auto.BanditCfg.VIXSymbol = "VIX"

	got := auto.marketContext(context.Background())
	if got.VIX != 35 {
		t.Fatalf("vix=%v want=35", got.VIX)
	}
	if auto.Selector.Eligible("opening_range_breakout", got) {
		t.Fatalf("breakout eligible under VIX 35, want gated")
	}
}

func TestChooseFamily_LowVolGatesBreakout(t *testing.T) {
	repo := newStubRepo()
	repo.arms = []models.BanditArm{
		{Family: "opening_range_breakout", Alpha: 999, Beta: 1},
		{Family: "mean_reversion_rsi", Alpha: 1, Beta: 1},
	}
	market := &stubMarket{bars: indexBars(40, 0.05)}
	auto := newAutoTrader(repo, &stubBroker{}, market)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		family, err := auto.chooseFamily(context.Background(), rng)
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if family != "mean_reversion_rsi" {
			t.Fatalf("family=%s want=mean_reversion_rsi (breakout gated in low vol)", family)
		}
	}
}

func TestChooseFamily_BreakoutEligibleInNormalVol(t *testing.T) {
	repo := newStubRepo()
	repo.arms = []models.BanditArm{
		{Family: "opening_range_breakout", Alpha: 999, Beta: 1},
		{Family: "mean_reversion_rsi", Alpha: 1, Beta: 999},
	}
	market := &stubMarket{bars: indexBars(40, 2.0)}
	auto := newAutoTrader(repo, &stubBroker{}, market)

	rng := rand.New(rand.NewSource(7))
	family, err := auto.chooseFamily(context.Background(), rng)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if family != "opening_range_breakout" {
		t.Fatalf("family=%s want=opening_range_breakout", family)
	}
}

func seedSubmittedOrder(repo *stubRepo, signalID uint64) *models.Order {
	brokerID := "brk-9"
	submitted := time.Now().UTC().Add(-2 * time.Hour)
	sigID := signalID
	order := &models.Order{
		UserID:           1,
		SignalID:         &sigID,
		Symbol:           "AAPL",
		Side:             "buy",
		Qty:              10,
		Price:            decimal.NewFromInt(100),
		Notional:         decimal.NewFromInt(1000),
		IdempotencyToken: "tok-rec",
		Status:           models.OrderSubmitted,
		BrokerOrderID:    &brokerID,
		SubmittedAt:      &submitted,
	}
	repo.nextOrderID++
	order.ID = repo.nextOrderID
	repo.ordersByToken[order.IdempotencyToken] = order
	repo.ordersByID[order.ID] = order
	repo.signalByID[signalID] = &models.Signal{
		ID:                signalID,
		StrategyVersionID: 7,
		StrategyVersion:   models.StrategyVersion{LogicKey: "momentum_breakout"},
	}
	return order
}

func TestReconcileFills_FillFeedsBandit(t *testing.T) {
	repo := newStubRepo()
	order := seedSubmittedOrder(repo, 10)
	pnl := decimal.NewFromInt(150)
	brk := &stubBroker{
		account:     approvedAccount(),
		orderStatus: &broker.OrderStatus{Status: models.OrderFilled, RealizedPnL: &pnl},
	}
	auto := newAutoTrader(repo, brk, &stubMarket{})

	if err := auto.ReconcileFills(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	got := repo.ordersByID[order.ID]
	if got.Status != models.OrderFilled || got.FilledAt == nil {
		t.Fatalf("order=%+v want filled with timestamp", got)
	}
	if len(repo.rewardedFamilies) != 1 || repo.rewardedFamilies[0] != "momentum_breakout" {
		t.Fatalf("rewarded=%v want=[momentum_breakout]", repo.rewardedFamilies)
	}
	if repo.rewardedPnL[0] != 150 {
		t.Fatalf("pnl=%v want=150", repo.rewardedPnL[0])
	}
}

func TestReconcileFills_LossTripsCircuit(t *testing.T) {
	repo := newStubRepo()
	repo.autoSettings.DailyLossLimitPct = 0.03
	seedSubmittedOrder(repo, 10)
	pnl := decimal.NewFromInt(-10_000)
	brk := &stubBroker{
		account:     approvedAccount(),
		orderStatus: &broker.OrderStatus{Status: models.OrderFilled, RealizedPnL: &pnl},
	}
	auto := newAutoTrader(repo, brk, &stubMarket{})

	if err := auto.ReconcileFills(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if !repo.usage.RealizedLoss.Equal(decimal.NewFromInt(10_000)) {
		t.Fatalf("realizedLoss=%s want=10000", repo.usage.RealizedLoss)
	}
	if !repo.usage.CircuitBroken {
		t.Fatalf("circuit not tripped on loss past the daily limit")
	}
	// The losing trade still teaches the bandit.
	if len(repo.rewardedPnL) != 1 || repo.rewardedPnL[0] != -10_000 {
		t.Fatalf("rewardedPnL=%v want=[-10000]", repo.rewardedPnL)
	}
}

func TestReconcileFills_FilledWithoutPnLSkipsReward(t *testing.T) {
	repo := newStubRepo()
	order := seedSubmittedOrder(repo, 10)
	brk := &stubBroker{
		account:     approvedAccount(),
		orderStatus: &broker.OrderStatus{Status: models.OrderFilled},
	}
	auto := newAutoTrader(repo, brk, &stubMarket{})

	if err := auto.ReconcileFills(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if repo.ordersByID[order.ID].Status != models.OrderFilled {
		t.Fatalf("status=%s want=%s", repo.ordersByID[order.ID].Status, models.OrderFilled)
	}
	if len(repo.rewardedFamilies) != 0 {
		t.Fatalf("rewarded=%v want none before the round trip closes", repo.rewardedFamilies)
	}
}

func TestReconcileFills_StaleOrderCancelled(t *testing.T) {
	repo := newStubRepo()
	order := seedSubmittedOrder(repo, 10)
	brk := &stubBroker{account: approvedAccount()}
	auto := newAutoTrader(repo, brk, &stubMarket{})
	auto.Cfg.StaleOrderAge = time.Minute

	if err := auto.ReconcileFills(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(brk.cancelled) != 1 || brk.cancelled[0] != "brk-9" {
		t.Fatalf("cancelled=%v want=[brk-9]", brk.cancelled)
	}
	got := repo.ordersByID[order.ID]
	if got.Status != models.OrderCancelled || got.RejectReason != "unfilled past max age" {
		t.Fatalf("order=%+v want cancelled as stale", got)
	}
}

func TestReconcileFills_VenueCancelClosesOrder(t *testing.T) {
	repo := newStubRepo()
	order := seedSubmittedOrder(repo, 10)
	brk := &stubBroker{
		account:     approvedAccount(),
		orderStatus: &broker.OrderStatus{Status: models.OrderCancelled},
	}
	auto := newAutoTrader(repo, brk, &stubMarket{})

	if err := auto.ReconcileFills(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	got := repo.ordersByID[order.ID]
	if got.Status != models.OrderCancelled {
		t.Fatalf("status=%s want=%s", got.Status, models.OrderCancelled)
	}
	if len(repo.rewardedFamilies) != 0 {
		t.Fatalf("rewarded=%v want none for a cancel", repo.rewardedFamilies)
	}
}
