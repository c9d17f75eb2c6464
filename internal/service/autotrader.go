package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesignal/internal/bandit"
	"tradesignal/internal/broker"
	"tradesignal/internal/config"
	"tradesignal/internal/features"
	"tradesignal/internal/marketdata"
	"tradesignal/internal/models"
	"tradesignal/internal/repository"
	"tradesignal/internal/risk"
	"tradesignal/internal/trading"
)

// AutoTrader consumes fresh signals for users who opted in. Each scan picks
// one strategy family via Thompson sampling and only acts on that family's
// signals; everything else waits for a later scan.
type AutoTrader struct {
	Repo      repository.Repository
	Router    *OrderRouter
	Broker    Broker
	Market    MarketData
	Selector  *bandit.Selector
	Logger    *zap.Logger
	Cfg       config.AutoTraderConfig
	BanditCfg config.BanditConfig
	RiskCfg   config.RiskConfig
	Seed      int64
}

func (s *AutoTrader) Run(ctx context.Context) error {
	if s == nil || s.Repo == nil || s.Router == nil {
		return nil
	}
	interval := s.Cfg.ScanInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seed := s.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	for {
		if err := s.scanOnce(ctx, rng); err != nil {
			s.log().Warn("auto trader scan failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *AutoTrader) scanOnce(ctx context.Context, rng *rand.Rand) error {
	if !s.Cfg.Enabled {
		return nil
	}

	family, err := s.chooseFamily(ctx, rng)
	if err != nil {
		return err
	}
	if family == "" {
		return nil
	}

	maxAge := s.Cfg.SignalMaxAge
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	since := time.Now().UTC().Add(-maxAge)
	minConf := s.Cfg.MinConfidence
	limit := s.Cfg.MaxPerScan
	if limit <= 0 {
		limit = 50
	}
	signals, err := s.Repo.ListSignals(ctx, repository.ListSignalsParams{
		Limit:         limit,
		Since:         &since,
		MinConfidence: &minConf,
		OrderBy:       "confidence",
	})
	if err != nil {
		return err
	}

	versionCache := map[uint64]*models.StrategyVersion{}
	accountCache := map[uint64]*broker.Account{}

	for _, sig := range signals {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sig.UserID != nil {
			continue // user-scoped signals are not auto-traded for others
		}
		if sig.SignalType != models.SignalEntryLong && sig.SignalType != models.SignalEntryShort {
			continue
		}
		version, ok := versionCache[sig.StrategyVersionID]
		if !ok {
			version, err = s.Repo.GetStrategyVersion(ctx, sig.StrategyVersionID)
			if err != nil || version == nil {
				continue
			}
			versionCache[sig.StrategyVersionID] = version
		}
		if version.LogicKey != family {
			continue
		}
		if err := s.processSignal(ctx, sig, version, accountCache); err != nil {
			s.log().Warn("auto trade skipped signal",
				zap.Uint64("signal_id", sig.ID), zap.Error(err))
		}
	}
	return nil
}

// chooseFamily samples the posterior over arms eligible under the current
// market regime. An empty family means nothing is eligible right now.
func (s *AutoTrader) chooseFamily(ctx context.Context, rng *rand.Rand) (string, error) {
	arms, err := s.Repo.ListBanditArms(ctx)
	if err != nil {
		return "", err
	}
	if len(arms) == 0 {
		return "", nil
	}
	family, draw, err := s.Selector.Select(arms, s.marketContext(ctx), rng)
	if err != nil {
		return "", nil
	}
	s.log().Debug("bandit selected family",
		zap.String("family", family), zap.Float64("draw", draw))
	return family, nil
}

// marketContext classifies the broad-market regime from the index proxy's
// features. A missing feed or thin history degrades to a neutral context so
// a data outage never halts the scan loop.
func (s *AutoTrader) marketContext(ctx context.Context) bandit.Context {
	now := time.Now()
	neutral := bandit.Context{
		Trend:       bandit.TrendSideways,
		Volatility:  bandit.VolNormal,
		MinuteOfDay: easternMinuteOfDay(now),
	}
	if s.Market == nil || s.BanditCfg.IndexSymbol == "" {
		return neutral
	}

	timeframe := s.BanditCfg.ContextTimeframe
	if timeframe == "" {
		timeframe = "5m"
	}
	lookback := s.BanditCfg.ContextLookbackBars
	if lookback <= 0 {
		lookback = 90
	}
	period := marketdata.TimeframeDuration(timeframe)
	if period <= 0 {
		period = 5 * time.Minute
	}
	end := now.UTC()
	start := end.Add(-time.Duration(lookback) * period * 3)

	bars, err := s.Market.GetBars(ctx, s.BanditCfg.IndexSymbol, timeframe, start, end)
	if err != nil {
		s.log().Warn("index bars unavailable, using neutral context",
			zap.String("symbol", s.BanditCfg.IndexSymbol), zap.Error(err))
		return neutral
	}
	fs, err := features.Extract(s.BanditCfg.IndexSymbol, bars, nil, nil, 0)
	if err != nil {
		s.log().Warn("index features unavailable, using neutral context",
			zap.String("symbol", s.BanditCfg.IndexSymbol), zap.Error(err))
		return neutral
	}

	vix := 0.0
	if s.BanditCfg.VIXSymbol != "" {
		if quote, err := s.Market.GetQuote(ctx, s.BanditCfg.VIXSymbol); err == nil {
			vix = quote.Last
		}
	}
	return bandit.ClassifyContext(fs.MomentumPct, fs.ATRPct, vix, easternMinuteOfDay(now))
}

func (s *AutoTrader) processSignal(ctx context.Context, sig models.Signal, version *models.StrategyVersion, accounts map[uint64]*broker.Account) error {
	subs, err := s.Repo.ListAutoTradeSubscribers(ctx, version.ID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		settings, err := s.Repo.GetAutoTradingSettings(ctx, sub.UserID)
		if err != nil || settings == nil || !settings.Enabled {
			continue
		}
		if sig.Confidence < settings.MinConfidence {
			continue
		}
		account, ok := accounts[sub.UserID]
		if !ok {
			account, err = s.Broker.GetAccount(ctx, sub.UserID)
			if err != nil {
				s.log().Warn("account fetch failed", zap.Uint64("user_id", sub.UserID), zap.Error(err))
				continue
			}
			accounts[sub.UserID] = account
		}

		qty, err := s.sizeFor(sig, settings, account)
		if err != nil {
			continue
		}

		side := risk.LongSide
		if sig.SignalType == models.SignalEntryShort {
			side = risk.ShortSide
		}
		// Deterministic token: a rescan of the same signal/user pair can
		// never submit twice.
		token := fmt.Sprintf("auto-%d-%d", sig.ID, sub.UserID)
		sigID := sig.ID
		if _, err := s.Router.Submit(ctx, SubmitOrderInput{
			UserID:           sub.UserID,
			SignalID:         &sigID,
			Symbol:           sig.Symbol,
			Side:             side,
			Qty:              qty,
			Price:            sig.Price,
			IdempotencyToken: token,
			Confidence:       sig.Confidence,
			AutoTrade:        true,
		}); err != nil {
			s.log().Info("auto trade not placed",
				zap.Uint64("signal_id", sig.ID),
				zap.Uint64("user_id", sub.UserID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *AutoTrader) sizeFor(sig models.Signal, settings *models.AutoTradingSettings, account *broker.Account) (int64, error) {
	equity, _ := account.Equity.Float64()
	entry, _ := sig.Price.Float64()

	var qty int64
	switch settings.SizingMethod {
	case models.SizingFixed:
		qty = risk.SizeFixed(equity*settings.MaxPositionPct, entry)
	case models.SizingPercentage:
		qty = risk.SizePercentage(equity, settings.MaxPositionPct, entry)
	default: // risk_based
		if sig.Stop == nil {
			return 0, trading.ErrDegenerateRisk
		}
		stop, _ := sig.Stop.Float64()
		size, err := risk.SizePosition(equity, entry, stop, settings.RiskPerTradePct, settings.MaxPositionPct)
		if err != nil {
			return 0, err
		}
		qty = size.Shares
	}
	if qty <= 0 {
		return 0, trading.ErrDegenerateRisk
	}
	return qty, nil
}

// ReconcileFills polls the venue for every submitted order and settles
// terminal states. Fills feed realized P&L back through RecordFill; orders
// the venue dropped are closed out; orders unfilled past StaleOrderAge are
// cancelled at the venue.
func (s *AutoTrader) ReconcileFills(ctx context.Context) error {
	if s == nil || s.Repo == nil || s.Broker == nil {
		return nil
	}
	status := models.OrderSubmitted
	orders, err := s.Repo.ListOrders(ctx, repository.ListOrdersParams{
		Status: &status,
		Limit:  200,
	})
	if err != nil {
		return err
	}
	for i := range orders {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		order := &orders[i]
		if order.BrokerOrderID == nil {
			continue
		}
		st, err := s.Broker.GetOrder(ctx, *order.BrokerOrderID)
		if err != nil {
			s.log().Warn("order poll failed",
				zap.Uint64("order_id", order.ID), zap.Error(err))
			continue
		}
		switch st.Status {
		case models.OrderFilled:
			now := time.Now().UTC()
			if err := s.Repo.UpdateOrderStatus(ctx, order.ID, models.OrderFilled, map[string]any{
				"filled_at": now,
			}); err != nil {
				s.log().Error("fill persist failed",
					zap.Uint64("order_id", order.ID), zap.Error(err))
				continue
			}
			order.Status = models.OrderFilled
			order.FilledAt = &now
			if st.RealizedPnL != nil {
				pnl, _ := st.RealizedPnL.Float64()
				if err := s.RecordFill(ctx, order, pnl); err != nil {
					s.log().Warn("fill settlement failed",
						zap.Uint64("order_id", order.ID), zap.Error(err))
				}
			}
		case models.OrderCancelled, models.OrderRejected:
			if err := s.Repo.UpdateOrderStatus(ctx, order.ID, models.OrderCancelled, map[string]any{
				"reject_reason": "closed by venue: " + st.Status,
			}); err != nil {
				s.log().Error("venue close persist failed",
					zap.Uint64("order_id", order.ID), zap.Error(err))
			}
		default:
			maxAge := s.Cfg.StaleOrderAge
			if maxAge <= 0 || order.SubmittedAt == nil || time.Since(*order.SubmittedAt) < maxAge {
				continue
			}
			if err := s.Broker.CancelOrder(ctx, *order.BrokerOrderID); err != nil {
				s.log().Warn("stale order cancel failed",
					zap.Uint64("order_id", order.ID), zap.Error(err))
				continue
			}
			if err := s.Repo.UpdateOrderStatus(ctx, order.ID, models.OrderCancelled, map[string]any{
				"reject_reason": "unfilled past max age",
			}); err != nil {
				s.log().Error("stale cancel persist failed",
					zap.Uint64("order_id", order.ID), zap.Error(err))
			}
		}
	}
	return nil
}

// RecordFill settles a filled auto trade back into the loop: realized loss
// feeds the circuit breaker and P&L rewards the arm that produced it.
func (s *AutoTrader) RecordFill(ctx context.Context, order *models.Order, pnl float64) error {
	if s == nil || s.Repo == nil || order == nil {
		return nil
	}
	if pnl < 0 {
		loss := decimal.NewFromFloat(-pnl)
		limitAmt := decimal.Zero
		if settings, err := s.Repo.GetAutoTradingSettings(ctx, order.UserID); err == nil && settings != nil {
			if account, err := s.Broker.GetAccount(ctx, order.UserID); err == nil {
				limitAmt = account.Equity.Mul(decimal.NewFromFloat(settings.DailyLossLimitPct))
			}
		}
		if broken, err := s.Repo.AddRealizedLoss(ctx, order.UserID, time.Now().UTC(), loss, limitAmt); err != nil {
			s.log().Error("realized loss record failed", zap.Uint64("order_id", order.ID), zap.Error(err))
		} else if broken {
			s.log().Warn("daily loss circuit tripped", zap.Uint64("user_id", order.UserID))
		}
	}

	if order.SignalID == nil {
		return nil
	}
	sig, err := s.Repo.GetSignalByID(ctx, *order.SignalID)
	if err != nil || sig == nil {
		return err
	}
	if _, err := s.Repo.RewardArm(ctx, sig.StrategyVersion.LogicKey, pnl); err != nil {
		s.log().Warn("bandit reward failed",
			zap.String("family", sig.StrategyVersion.LogicKey), zap.Error(err))
		return fmt.Errorf("%w: %v", trading.ErrBanditUpdate, err)
	}
	return nil
}

func (s *AutoTrader) log() *zap.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
