package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradesignal/internal/models"
)

// Repository is the single persistence surface for the engine. The two
// contended rows (bandit arms and daily risk usage) are only reachable
// through the atomic operations below; callers never compose their own
// read-modify-write cycles against them.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Strategies and versions.
	CreateStrategy(ctx context.Context, item *models.Strategy) error
	GetStrategyByID(ctx context.Context, id uint64) (*models.Strategy, error)
	GetStrategyBySlug(ctx context.Context, slug string) (*models.Strategy, error)
	ListStrategies(ctx context.Context, params ListStrategiesParams) ([]models.Strategy, error)
	CountStrategies(ctx context.Context, params ListStrategiesParams) (int64, error)
	SetStrategyEnabled(ctx context.Context, id uint64, enabled bool) error
	// CreateStrategyVersion assigns the next version number and, when
	// makeDefault is set, clears the previous default in the same
	// transaction so exactly one default survives.
	CreateStrategyVersion(ctx context.Context, item *models.StrategyVersion, makeDefault bool) error
	GetStrategyVersion(ctx context.Context, id uint64) (*models.StrategyVersion, error)
	GetDefaultVersion(ctx context.Context, strategyID uint64) (*models.StrategyVersion, error)
	ListVersionsByStrategy(ctx context.Context, strategyID uint64) ([]models.StrategyVersion, error)
	SetDefaultVersion(ctx context.Context, strategyID, versionID uint64) error
	// ListEnabledDefaultVersions returns the default version of every
	// enabled strategy, for the live scan loop.
	ListEnabledDefaultVersions(ctx context.Context) ([]models.StrategyVersion, error)

	// Signals.
	InsertSignal(ctx context.Context, item *models.Signal) error
	InsertSignals(ctx context.Context, items []models.Signal) error
	GetSignalByID(ctx context.Context, id uint64) (*models.Signal, error)
	ListSignals(ctx context.Context, params ListSignalsParams) ([]models.Signal, error)
	CountSignals(ctx context.Context, params ListSignalsParams) (int64, error)
	AttachBrokerOrder(ctx context.Context, signalID uint64, brokerOrderID string) error
	DeleteExpiredSignals(ctx context.Context, before time.Time) (int64, error)

	// Per-user settings.
	UpsertUserStrategySettings(ctx context.Context, item *models.UserStrategySettings) error
	GetUserStrategySettings(ctx context.Context, userID, versionID uint64) (*models.UserStrategySettings, error)
	ListAutoTradeSubscribers(ctx context.Context, versionID uint64) ([]models.UserStrategySettings, error)
	GetAutoTradingSettings(ctx context.Context, userID uint64) (*models.AutoTradingSettings, error)
	UpsertAutoTradingSettings(ctx context.Context, item *models.AutoTradingSettings) error

	// Backtests.
	CreateBacktestRun(ctx context.Context, item *models.BacktestRun) error
	GetBacktestRun(ctx context.Context, id uint64) (*models.BacktestRun, error)
	ListBacktestRuns(ctx context.Context, params ListBacktestRunsParams) ([]models.BacktestRun, error)
	CountBacktestRuns(ctx context.Context, params ListBacktestRunsParams) (int64, error)
	// ClaimPendingBacktest locks and flips one pending run to running.
	// Returns nil when no claimable run exists.
	ClaimPendingBacktest(ctx context.Context) (*models.BacktestRun, error)
	// TransitionBacktest enforces the forward-only status machine: the
	// update applies only when the run is currently in fromStatus.
	TransitionBacktest(ctx context.Context, id uint64, fromStatus, toStatus string, errorReason string, metrics []byte) (bool, error)
	SaveBacktestArtifact(ctx context.Context, item *models.BacktestArtifact) error
	GetBacktestArtifact(ctx context.Context, runID uint64) (*models.BacktestArtifact, error)

	// Bandit arms. RewardArm and ResetArm run under row locks.
	EnsureBanditArm(ctx context.Context, family string) error
	GetBanditArm(ctx context.Context, family string) (*models.BanditArm, error)
	ListBanditArms(ctx context.Context) ([]models.BanditArm, error)
	RewardArm(ctx context.Context, family string, pnl float64) (*models.BanditArm, error)
	ResetArm(ctx context.Context, family string) (*models.BanditArm, error)

	// Orders.
	// CreateOrderIdempotent returns the existing order when the
	// idempotency token has been seen before; created reports which case.
	CreateOrderIdempotent(ctx context.Context, item *models.Order) (order *models.Order, created bool, err error)
	GetOrderByID(ctx context.Context, id uint64) (*models.Order, error)
	ListOrders(ctx context.Context, params ListOrdersParams) ([]models.Order, error)
	CountOrders(ctx context.Context, params ListOrdersParams) (int64, error)
	UpdateOrderStatus(ctx context.Context, id uint64, status string, updates map[string]any) error
	CountOpenOrders(ctx context.Context, userID uint64) (int64, error)

	// Daily risk usage. ConsumeDailyNotional is the only way the counter
	// grows; it refuses the whole amount when the cap would be exceeded.
	// enforceCircuit additionally refuses while the loss circuit is tripped;
	// the circuit halts auto trading only, so manual orders pass false.
	ConsumeDailyNotional(ctx context.Context, userID uint64, day time.Time, amount, dailyCap decimal.Decimal, enforceCircuit bool) (bool, error)
	ReleaseDailyNotional(ctx context.Context, userID uint64, day time.Time, amount decimal.Decimal) error
	AddRealizedLoss(ctx context.Context, userID uint64, day time.Time, loss, limit decimal.Decimal) (circuitBroken bool, err error)
	GetDailyRiskUsage(ctx context.Context, userID uint64, day time.Time) (*models.DailyRiskUsage, error)

	// Screener funnel snapshots.
	InsertFunnelSnapshot(ctx context.Context, item *models.FunnelSnapshot) error
	LatestFunnelSnapshot(ctx context.Context) (*models.FunnelSnapshot, error)
	ListFunnelSnapshots(ctx context.Context, params ListFunnelSnapshotsParams) ([]models.FunnelSnapshot, error)
}

type ListStrategiesParams struct {
	Limit    int
	Offset   int
	Enabled  *bool
	Category *string
	UserID   *uint64
	OrderBy  string
	Asc      *bool
}

type ListSignalsParams struct {
	Limit             int
	Offset            int
	Symbol            *string
	SignalType        *string
	StrategyVersionID *uint64
	UserID            *uint64
	MinConfidence     *float64
	Since             *time.Time
	OrderBy           string
	Asc               *bool
}

type ListBacktestRunsParams struct {
	Limit             int
	Offset            int
	Status            *string
	StrategyVersionID *uint64
	Symbol            *string
	OrderBy           string
	Asc               *bool
}

type ListOrdersParams struct {
	Limit   int
	Offset  int
	UserID  *uint64
	Status  *string
	Symbol  *string
	Since   *time.Time
	OrderBy string
	Asc     *bool
}

type ListFunnelSnapshotsParams struct {
	Limit  int
	Offset int
	Since  *time.Time
}
