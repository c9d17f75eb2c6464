package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradesignal/internal/models"
	"tradesignal/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// It implements the full interface but only the order and risk-usage paths
// carry real logic; everything else returns zero values.
type stubRepo struct {
	ordersByToken map[string]*models.Order
	ordersByID    map[uint64]*models.Order
	nextOrderID   uint64

	autoSettings *models.AutoTradingSettings
	usage        *models.DailyRiskUsage

	signals      []models.Signal
	signalByID   map[uint64]*models.Signal
	attachedSigs map[uint64]string

	arms             []models.BanditArm
	rewardedFamilies []string
	rewardedPnL      []float64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		ordersByToken: map[string]*models.Order{},
		ordersByID:    map[uint64]*models.Order{},
		signalByID:    map[uint64]*models.Signal{},
		attachedSigs:  map[uint64]string{},
		autoSettings: &models.AutoTradingSettings{
			UserID:                 1,
			Enabled:                true,
			MarketHoursOnly:        false,
			MaxConcurrentPositions: 10,
		},
		usage: &models.DailyRiskUsage{UserID: 1},
	}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) CreateStrategy(ctx context.Context, item *models.Strategy) error { return nil }
func (s *stubRepo) GetStrategyByID(ctx context.Context, id uint64) (*models.Strategy, error) {
	return nil, nil
}
func (s *stubRepo) GetStrategyBySlug(ctx context.Context, slug string) (*models.Strategy, error) {
	return nil, nil
}
func (s *stubRepo) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	return nil, nil
}
func (s *stubRepo) CountStrategies(ctx context.Context, params repository.ListStrategiesParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) SetStrategyEnabled(ctx context.Context, id uint64, enabled bool) error {
	return nil
}
func (s *stubRepo) CreateStrategyVersion(ctx context.Context, item *models.StrategyVersion, makeDefault bool) error {
	return nil
}
func (s *stubRepo) GetStrategyVersion(ctx context.Context, id uint64) (*models.StrategyVersion, error) {
	return nil, nil
}
func (s *stubRepo) GetDefaultVersion(ctx context.Context, strategyID uint64) (*models.StrategyVersion, error) {
	return nil, nil
}
func (s *stubRepo) ListVersionsByStrategy(ctx context.Context, strategyID uint64) ([]models.StrategyVersion, error) {
	return nil, nil
}
func (s *stubRepo) SetDefaultVersion(ctx context.Context, strategyID, versionID uint64) error {
	return nil
}
func (s *stubRepo) ListEnabledDefaultVersions(ctx context.Context) ([]models.StrategyVersion, error) {
	return nil, nil
}

func (s *stubRepo) InsertSignal(ctx context.Context, item *models.Signal) error {
	item.ID = uint64(len(s.signals) + 1)
	s.signals = append(s.signals, *item)
	return nil
}
func (s *stubRepo) InsertSignals(ctx context.Context, items []models.Signal) error {
	for i := range items {
		if err := s.InsertSignal(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}
func (s *stubRepo) GetSignalByID(ctx context.Context, id uint64) (*models.Signal, error) {
	return s.signalByID[id], nil
}
func (s *stubRepo) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	return nil, nil
}
func (s *stubRepo) CountSignals(ctx context.Context, params repository.ListSignalsParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) AttachBrokerOrder(ctx context.Context, signalID uint64, brokerOrderID string) error {
	s.attachedSigs[signalID] = brokerOrderID
	return nil
}
func (s *stubRepo) DeleteExpiredSignals(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (s *stubRepo) UpsertUserStrategySettings(ctx context.Context, item *models.UserStrategySettings) error {
	return nil
}
func (s *stubRepo) GetUserStrategySettings(ctx context.Context, userID, versionID uint64) (*models.UserStrategySettings, error) {
	return nil, nil
}
func (s *stubRepo) ListAutoTradeSubscribers(ctx context.Context, versionID uint64) ([]models.UserStrategySettings, error) {
	return nil, nil
}
func (s *stubRepo) GetAutoTradingSettings(ctx context.Context, userID uint64) (*models.AutoTradingSettings, error) {
	return s.autoSettings, nil
}
func (s *stubRepo) UpsertAutoTradingSettings(ctx context.Context, item *models.AutoTradingSettings) error {
	s.autoSettings = item
	return nil
}

func (s *stubRepo) CreateBacktestRun(ctx context.Context, item *models.BacktestRun) error { return nil }
func (s *stubRepo) GetBacktestRun(ctx context.Context, id uint64) (*models.BacktestRun, error) {
	return nil, nil
}
func (s *stubRepo) ListBacktestRuns(ctx context.Context, params repository.ListBacktestRunsParams) ([]models.BacktestRun, error) {
	return nil, nil
}
func (s *stubRepo) CountBacktestRuns(ctx context.Context, params repository.ListBacktestRunsParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) ClaimPendingBacktest(ctx context.Context) (*models.BacktestRun, error) {
	return nil, nil
}
func (s *stubRepo) TransitionBacktest(ctx context.Context, id uint64, fromStatus, toStatus string, errorReason string, metrics []byte) (bool, error) {
	return true, nil
}
func (s *stubRepo) SaveBacktestArtifact(ctx context.Context, item *models.BacktestArtifact) error {
	return nil
}
func (s *stubRepo) GetBacktestArtifact(ctx context.Context, runID uint64) (*models.BacktestArtifact, error) {
	return nil, nil
}

func (s *stubRepo) EnsureBanditArm(ctx context.Context, family string) error { return nil }
func (s *stubRepo) GetBanditArm(ctx context.Context, family string) (*models.BanditArm, error) {
	return nil, nil
}
func (s *stubRepo) ListBanditArms(ctx context.Context) ([]models.BanditArm, error) {
	return s.arms, nil
}
func (s *stubRepo) RewardArm(ctx context.Context, family string, pnl float64) (*models.BanditArm, error) {
	s.rewardedFamilies = append(s.rewardedFamilies, family)
	s.rewardedPnL = append(s.rewardedPnL, pnl)
	return nil, nil
}
func (s *stubRepo) ResetArm(ctx context.Context, family string) (*models.BanditArm, error) {
	return nil, nil
}

func (s *stubRepo) CreateOrderIdempotent(ctx context.Context, item *models.Order) (*models.Order, bool, error) {
	if existing, ok := s.ordersByToken[item.IdempotencyToken]; ok {
		return existing, false, nil
	}
	s.nextOrderID++
	item.ID = s.nextOrderID
	item.CreatedAt = time.Now().UTC()
	s.ordersByToken[item.IdempotencyToken] = item
	s.ordersByID[item.ID] = item
	return item, true, nil
}
func (s *stubRepo) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	return s.ordersByID[id], nil
}
func (s *stubRepo) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	var out []models.Order
	for id := uint64(1); id <= s.nextOrderID; id++ {
		o, ok := s.ordersByID[id]
		if !ok {
			continue
		}
		if params.Status != nil && o.Status != *params.Status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}
func (s *stubRepo) CountOrders(ctx context.Context, params repository.ListOrdersParams) (int64, error) {
	return 0, nil
}
func (s *stubRepo) UpdateOrderStatus(ctx context.Context, id uint64, status string, updates map[string]any) error {
	if o, ok := s.ordersByID[id]; ok {
		o.Status = status
		if reason, ok := updates["reject_reason"].(string); ok {
			o.RejectReason = reason
		}
		if at, ok := updates["filled_at"].(time.Time); ok {
			o.FilledAt = &at
		}
	}
	return nil
}
func (s *stubRepo) CountOpenOrders(ctx context.Context, userID uint64) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ConsumeDailyNotional(ctx context.Context, userID uint64, day time.Time, amount, dailyCap decimal.Decimal, enforceCircuit bool) (bool, error) {
	if enforceCircuit && s.usage.CircuitBroken {
		return false, nil
	}
	next := s.usage.UsedNotional.Add(amount)
	if dailyCap.Sign() > 0 && next.Cmp(dailyCap) > 0 {
		return false, nil
	}
	s.usage.UsedNotional = next
	return true, nil
}
func (s *stubRepo) ReleaseDailyNotional(ctx context.Context, userID uint64, day time.Time, amount decimal.Decimal) error {
	if s.usage.UsedNotional.Cmp(amount) >= 0 {
		s.usage.UsedNotional = s.usage.UsedNotional.Sub(amount)
	}
	return nil
}
func (s *stubRepo) AddRealizedLoss(ctx context.Context, userID uint64, day time.Time, loss, limit decimal.Decimal) (bool, error) {
	s.usage.RealizedLoss = s.usage.RealizedLoss.Add(loss)
	if limit.Sign() > 0 && s.usage.RealizedLoss.Cmp(limit) >= 0 {
		s.usage.CircuitBroken = true
	}
	return s.usage.CircuitBroken, nil
}
func (s *stubRepo) GetDailyRiskUsage(ctx context.Context, userID uint64, day time.Time) (*models.DailyRiskUsage, error) {
	return s.usage, nil
}

func (s *stubRepo) InsertFunnelSnapshot(ctx context.Context, item *models.FunnelSnapshot) error {
	return nil
}
func (s *stubRepo) LatestFunnelSnapshot(ctx context.Context) (*models.FunnelSnapshot, error) {
	return nil, nil
}
func (s *stubRepo) ListFunnelSnapshots(ctx context.Context, params repository.ListFunnelSnapshotsParams) ([]models.FunnelSnapshot, error) {
	return nil, nil
}

var _ repository.Repository = (*stubRepo)(nil)
