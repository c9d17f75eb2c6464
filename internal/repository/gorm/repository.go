package gormrepository

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradesignal/internal/bandit"
	"tradesignal/internal/models"
	"tradesignal/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Strategies -------------------------------------------------------------

func (s *Store) CreateStrategy(ctx context.Context, item *models.Strategy) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetStrategyByID(ctx context.Context, id uint64) (*models.Strategy, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Strategy
	err := s.db.WithContext(ctx).
		Model(&models.Strategy{}).
		Where("id = ?", id).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetStrategyBySlug(ctx context.Context, slug string) (*models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if strings.TrimSpace(slug) == "" {
		return nil, nil
	}
	var item models.Strategy
	err := s.db.WithContext(ctx).
		Model(&models.Strategy{}).
		Where("slug = ?", strings.TrimSpace(slug)).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyStrategyFilters(s.db.WithContext(ctx).Model(&models.Strategy{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Strategy
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountStrategies(ctx context.Context, params repository.ListStrategiesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := applyStrategyFilters(s.db.WithContext(ctx).Model(&models.Strategy{}), params).Count(&count).Error
	return count, err
}

func applyStrategyFilters(query *gorm.DB, params repository.ListStrategiesParams) *gorm.DB {
	if params.Enabled != nil {
		query = query.Where("enabled = ?", *params.Enabled)
	}
	if params.Category != nil && strings.TrimSpace(*params.Category) != "" {
		query = query.Where("category = ?", strings.TrimSpace(*params.Category))
	}
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	return query
}

func (s *Store) SetStrategyEnabled(ctx context.Context, id uint64, enabled bool) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Strategy{}).
		Where("id = ?", id).
		Update("enabled", enabled).Error
}

func (s *Store) CreateStrategyVersion(ctx context.Context, item *models.StrategyVersion, makeDefault bool) error {
	if s == nil || s.db == nil || item == nil || item.StrategyID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the parent row so concurrent version creates serialize and
		// version numbers stay dense.
		var parent models.Strategy
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", item.StrategyID).
			First(&parent).Error; err != nil {
			return err
		}
		var maxVersion int
		if err := tx.Model(&models.StrategyVersion{}).
			Where("strategy_id = ?", item.StrategyID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&maxVersion).Error; err != nil {
			return err
		}
		item.Version = maxVersion + 1
		item.IsDefault = makeDefault
		if makeDefault {
			if err := tx.Model(&models.StrategyVersion{}).
				Where("strategy_id = ?", item.StrategyID).
				Where("is_default = ?", true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(item).Error
	})
}

func (s *Store) GetStrategyVersion(ctx context.Context, id uint64) (*models.StrategyVersion, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.StrategyVersion
	err := s.db.WithContext(ctx).
		Model(&models.StrategyVersion{}).
		Preload("Strategy").
		Where("id = ?", id).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetDefaultVersion(ctx context.Context, strategyID uint64) (*models.StrategyVersion, error) {
	if s == nil || s.db == nil || strategyID == 0 {
		return nil, nil
	}
	var item models.StrategyVersion
	err := s.db.WithContext(ctx).
		Model(&models.StrategyVersion{}).
		Where("strategy_id = ?", strategyID).
		Where("is_default = ?", true).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListVersionsByStrategy(ctx context.Context, strategyID uint64) ([]models.StrategyVersion, error) {
	if s == nil || s.db == nil || strategyID == 0 {
		return nil, nil
	}
	var items []models.StrategyVersion
	if err := s.db.WithContext(ctx).
		Model(&models.StrategyVersion{}).
		Where("strategy_id = ?", strategyID).
		Order("version desc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SetDefaultVersion(ctx context.Context, strategyID, versionID uint64) error {
	if s == nil || s.db == nil || strategyID == 0 || versionID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target models.StrategyVersion
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", versionID).
			Where("strategy_id = ?", strategyID).
			First(&target).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.StrategyVersion{}).
			Where("strategy_id = ?", strategyID).
			Where("is_default = ?", true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.StrategyVersion{}).
			Where("id = ?", versionID).
			Update("is_default", true).Error
	})
}

func (s *Store) ListEnabledDefaultVersions(ctx context.Context) ([]models.StrategyVersion, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.StrategyVersion
	if err := s.db.WithContext(ctx).
		Model(&models.StrategyVersion{}).
		Preload("Strategy").
		Joins("JOIN strategies ON strategies.id = strategy_versions.strategy_id").
		Where("strategies.enabled = ?", true).
		Where("strategy_versions.is_default = ?", true).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Signals ----------------------------------------------------------------

func (s *Store) InsertSignal(ctx context.Context, item *models.Signal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) InsertSignals(ctx context.Context, items []models.Signal) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(items, 200).Error
}

func (s *Store) GetSignalByID(ctx context.Context, id uint64) (*models.Signal, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Signal
	err := s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Preload("StrategyVersion").
		Where("id = ?", id).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applySignalFilters(s.db.WithContext(ctx).Model(&models.Signal{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Signal
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSignals(ctx context.Context, params repository.ListSignalsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := applySignalFilters(s.db.WithContext(ctx).Model(&models.Signal{}), params).Count(&count).Error
	return count, err
}

func applySignalFilters(query *gorm.DB, params repository.ListSignalsParams) *gorm.DB {
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.SignalType != nil && strings.TrimSpace(*params.SignalType) != "" {
		query = query.Where("signal_type = ?", strings.TrimSpace(*params.SignalType))
	}
	if params.StrategyVersionID != nil && *params.StrategyVersionID != 0 {
		query = query.Where("strategy_version_id = ?", *params.StrategyVersionID)
	}
	if params.UserID != nil {
		query = query.Where("user_id = ? OR user_id IS NULL", *params.UserID)
	}
	if params.MinConfidence != nil {
		query = query.Where("confidence >= ?", *params.MinConfidence)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

func (s *Store) AttachBrokerOrder(ctx context.Context, signalID uint64, brokerOrderID string) error {
	if s == nil || s.db == nil || signalID == 0 {
		return nil
	}
	if strings.TrimSpace(brokerOrderID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("id = ?", signalID).
		Where("broker_order_id IS NULL").
		Update("broker_order_id", strings.TrimSpace(brokerOrderID)).Error
}

func (s *Store) DeleteExpiredSignals(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if before.IsZero() {
		before = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", before).
		Delete(&models.Signal{})
	return res.RowsAffected, res.Error
}

// --- Per-user settings ------------------------------------------------------

func (s *Store) UpsertUserStrategySettings(ctx context.Context, item *models.UserStrategySettings) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "strategy_version_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled",
			"auto_trade",
			"max_concurrent_positions",
			"max_daily_loss_pct",
			"param_overrides",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetUserStrategySettings(ctx context.Context, userID, versionID uint64) (*models.UserStrategySettings, error) {
	if s == nil || s.db == nil || userID == 0 || versionID == 0 {
		return nil, nil
	}
	var item models.UserStrategySettings
	err := s.db.WithContext(ctx).
		Model(&models.UserStrategySettings{}).
		Where("user_id = ?", userID).
		Where("strategy_version_id = ?", versionID).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListAutoTradeSubscribers(ctx context.Context, versionID uint64) ([]models.UserStrategySettings, error) {
	if s == nil || s.db == nil || versionID == 0 {
		return nil, nil
	}
	var items []models.UserStrategySettings
	if err := s.db.WithContext(ctx).
		Model(&models.UserStrategySettings{}).
		Where("strategy_version_id = ?", versionID).
		Where("enabled = ?", true).
		Where("auto_trade = ?", true).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetAutoTradingSettings(ctx context.Context, userID uint64) (*models.AutoTradingSettings, error) {
	if s == nil || s.db == nil || userID == 0 {
		return nil, nil
	}
	var item models.AutoTradingSettings
	err := s.db.WithContext(ctx).
		Model(&models.AutoTradingSettings{}).
		Where("user_id = ?", userID).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertAutoTradingSettings(ctx context.Context, item *models.AutoTradingSettings) error {
	if s == nil || s.db == nil || item == nil || item.UserID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled",
			"sizing_method",
			"risk_per_trade_pct",
			"max_position_pct",
			"min_confidence",
			"allowed_symbols",
			"blocked_symbols",
			"market_hours_only",
			"max_concurrent_positions",
			"daily_loss_limit_pct",
			"updated_at",
		}),
	}).Create(item).Error
}

// --- Backtests --------------------------------------------------------------

func (s *Store) CreateBacktestRun(ctx context.Context, item *models.BacktestRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.Status == "" {
		item.Status = models.BacktestPending
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetBacktestRun(ctx context.Context, id uint64) (*models.BacktestRun, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.BacktestRun
	err := s.db.WithContext(ctx).
		Model(&models.BacktestRun{}).
		Preload("StrategyVersion").
		Where("id = ?", id).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListBacktestRuns(ctx context.Context, params repository.ListBacktestRunsParams) ([]models.BacktestRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyBacktestFilters(s.db.WithContext(ctx).Model(&models.BacktestRun{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.BacktestRun
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountBacktestRuns(ctx context.Context, params repository.ListBacktestRunsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := applyBacktestFilters(s.db.WithContext(ctx).Model(&models.BacktestRun{}), params).Count(&count).Error
	return count, err
}

func applyBacktestFilters(query *gorm.DB, params repository.ListBacktestRunsParams) *gorm.DB {
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.StrategyVersionID != nil && *params.StrategyVersionID != 0 {
		query = query.Where("strategy_version_id = ?", *params.StrategyVersionID)
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	return query
}

func (s *Store) ClaimPendingBacktest(ctx context.Context) (*models.BacktestRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var claimed *models.BacktestRun
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.BacktestRun
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", models.BacktestPending).
			Order("created_at asc").
			First(&item).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Model(&models.BacktestRun{}).
			Where("id = ?", item.ID).
			Updates(map[string]any{
				"status":     models.BacktestRunning,
				"started_at": now,
			}).Error; err != nil {
			return err
		}
		item.Status = models.BacktestRunning
		item.StartedAt = &now
		claimed = &item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) TransitionBacktest(ctx context.Context, id uint64, fromStatus, toStatus string, errorReason string, metrics []byte) (bool, error) {
	if s == nil || s.db == nil || id == 0 {
		return false, nil
	}
	updates := map[string]any{
		"status": toStatus,
	}
	if errorReason != "" {
		updates["error_reason"] = errorReason
	}
	if len(metrics) > 0 {
		updates["metrics"] = metrics
	}
	if toStatus == models.BacktestCompleted || toStatus == models.BacktestFailed {
		updates["finished_at"] = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.BacktestRun{}).
		Where("id = ?", id).
		Where("status = ?", fromStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) SaveBacktestArtifact(ctx context.Context, item *models.BacktestArtifact) error {
	if s == nil || s.db == nil || item == nil || item.RunID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"equity_curve",
			"trade_log",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetBacktestArtifact(ctx context.Context, runID uint64) (*models.BacktestArtifact, error) {
	if s == nil || s.db == nil || runID == 0 {
		return nil, nil
	}
	var item models.BacktestArtifact
	err := s.db.WithContext(ctx).
		Model(&models.BacktestArtifact{}).
		Where("run_id = ?", runID).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Bandit arms ------------------------------------------------------------

func (s *Store) EnsureBanditArm(ctx context.Context, family string) error {
	if s == nil || s.db == nil {
		return nil
	}
	family = strings.TrimSpace(family)
	if family == "" {
		return nil
	}
	arm := models.BanditArm{
		Family:     family,
		Alpha:      1,
		Beta:       1,
		WinRate:    0.5,
		Confidence: 2,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "family"}},
		DoNothing: true,
	}).Create(&arm).Error
}

func (s *Store) GetBanditArm(ctx context.Context, family string) (*models.BanditArm, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	family = strings.TrimSpace(family)
	if family == "" {
		return nil, nil
	}
	var item models.BanditArm
	err := s.db.WithContext(ctx).
		Model(&models.BanditArm{}).
		Where("family = ?", family).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListBanditArms(ctx context.Context) ([]models.BanditArm, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.BanditArm
	if err := s.db.WithContext(ctx).
		Model(&models.BanditArm{}).
		Order("family asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) RewardArm(ctx context.Context, family string, pnl float64) (*models.BanditArm, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	family = strings.TrimSpace(family)
	if family == "" {
		return nil, nil
	}
	var out *models.BanditArm
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var arm models.BanditArm
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("family = ?", family).
			First(&arm).Error; err != nil {
			return err
		}
		if err := bandit.RewardUpdate(&arm, pnl); err != nil {
			return err
		}
		if err := tx.Model(&models.BanditArm{}).
			Where("id = ?", arm.ID).
			Updates(map[string]any{
				"alpha":      arm.Alpha,
				"beta":       arm.Beta,
				"wins":       arm.Wins,
				"losses":     arm.Losses,
				"win_rate":   arm.WinRate,
				"confidence": arm.Confidence,
			}).Error; err != nil {
			return err
		}
		out = &arm
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ResetArm(ctx context.Context, family string) (*models.BanditArm, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	family = strings.TrimSpace(family)
	if family == "" {
		return nil, nil
	}
	var out *models.BanditArm
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var arm models.BanditArm
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("family = ?", family).
			First(&arm).Error; err != nil {
			return err
		}
		bandit.Reset(&arm)
		if err := tx.Model(&models.BanditArm{}).
			Where("id = ?", arm.ID).
			Updates(map[string]any{
				"alpha":      arm.Alpha,
				"beta":       arm.Beta,
				"wins":       arm.Wins,
				"losses":     arm.Losses,
				"win_rate":   arm.WinRate,
				"confidence": arm.Confidence,
			}).Error; err != nil {
			return err
		}
		out = &arm
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- Orders -----------------------------------------------------------------

func (s *Store) CreateOrderIdempotent(ctx context.Context, item *models.Order) (*models.Order, bool, error) {
	if s == nil || s.db == nil || item == nil {
		return nil, false, nil
	}
	token := strings.TrimSpace(item.IdempotencyToken)
	if token == "" {
		return nil, false, nil
	}
	item.IdempotencyToken = token
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_token"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return item, true, nil
	}
	var existing models.Order
	if err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("idempotency_token = ?", token).
		First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Order
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrderFilters(s.db.WithContext(ctx).Model(&models.Order{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Order
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountOrders(ctx context.Context, params repository.ListOrdersParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := applyOrderFilters(s.db.WithContext(ctx).Model(&models.Order{}), params).Count(&count).Error
	return count, err
}

func applyOrderFilters(query *gorm.DB, params repository.ListOrdersParams) *gorm.DB {
	if params.UserID != nil && *params.UserID != 0 {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id uint64, status string, updates map[string]any) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = status
	return s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) CountOpenOrders(ctx context.Context, userID uint64) (int64, error) {
	if s == nil || s.db == nil || userID == 0 {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ?", userID).
		Where("status IN ?", []string{models.OrderPending, models.OrderSubmitted}).
		Count(&count).Error
	return count, err
}

// --- Daily risk usage -------------------------------------------------------

func (s *Store) ConsumeDailyNotional(ctx context.Context, userID uint64, day time.Time, amount, dailyCap decimal.Decimal, enforceCircuit bool) (bool, error) {
	if s == nil || s.db == nil || userID == 0 {
		return false, nil
	}
	if amount.Sign() <= 0 {
		return false, nil
	}
	day = truncateDay(day)
	if err := s.ensureRiskUsageRow(ctx, userID, day); err != nil {
		return false, err
	}
	// The cap check and the increment happen in one guarded UPDATE so two
	// concurrent orders can never overshoot together. A non-positive cap
	// means unlimited. The loss circuit only stops auto-trade consumption.
	query := s.db.WithContext(ctx).
		Model(&models.DailyRiskUsage{}).
		Where("user_id = ?", userID).
		Where("day = ?", day)
	if enforceCircuit {
		query = query.Where("circuit_broken = ?", false)
	}
	if dailyCap.Sign() > 0 {
		query = query.Where("used_notional + ? <= ?", amount, dailyCap)
	}
	res := query.Update("used_notional", gorm.Expr("used_notional + ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ReleaseDailyNotional(ctx context.Context, userID uint64, day time.Time, amount decimal.Decimal) error {
	if s == nil || s.db == nil || userID == 0 {
		return nil
	}
	if amount.Sign() <= 0 {
		return nil
	}
	day = truncateDay(day)
	return s.db.WithContext(ctx).
		Model(&models.DailyRiskUsage{}).
		Where("user_id = ?", userID).
		Where("day = ?", day).
		Where("used_notional >= ?", amount).
		Update("used_notional", gorm.Expr("used_notional - ?", amount)).Error
}

func (s *Store) AddRealizedLoss(ctx context.Context, userID uint64, day time.Time, loss, limit decimal.Decimal) (bool, error) {
	if s == nil || s.db == nil || userID == 0 {
		return false, nil
	}
	if loss.Sign() <= 0 {
		return false, nil
	}
	day = truncateDay(day)
	if err := s.ensureRiskUsageRow(ctx, userID, day); err != nil {
		return false, err
	}
	broken := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var usage models.DailyRiskUsage
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			Where("day = ?", day).
			First(&usage).Error; err != nil {
			return err
		}
		usage.RealizedLoss = usage.RealizedLoss.Add(loss)
		if limit.Sign() > 0 && usage.RealizedLoss.GreaterThanOrEqual(limit) {
			usage.CircuitBroken = true
		}
		broken = usage.CircuitBroken
		return tx.Model(&models.DailyRiskUsage{}).
			Where("id = ?", usage.ID).
			Updates(map[string]any{
				"realized_loss":  usage.RealizedLoss,
				"circuit_broken": usage.CircuitBroken,
			}).Error
	})
	if err != nil {
		return false, err
	}
	return broken, nil
}

func (s *Store) GetDailyRiskUsage(ctx context.Context, userID uint64, day time.Time) (*models.DailyRiskUsage, error) {
	if s == nil || s.db == nil || userID == 0 {
		return nil, nil
	}
	var item models.DailyRiskUsage
	err := s.db.WithContext(ctx).
		Model(&models.DailyRiskUsage{}).
		Where("user_id = ?", userID).
		Where("day = ?", truncateDay(day)).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ensureRiskUsageRow(ctx context.Context, userID uint64, day time.Time) error {
	row := models.DailyRiskUsage{
		UserID:       userID,
		Day:          day,
		UsedNotional: decimal.Zero,
		RealizedLoss: decimal.Zero,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoNothing: true,
	}).Create(&row).Error
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// --- Funnel snapshots -------------------------------------------------------

func (s *Store) InsertFunnelSnapshot(ctx context.Context, item *models.FunnelSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) LatestFunnelSnapshot(ctx context.Context) (*models.FunnelSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.FunnelSnapshot
	err := s.db.WithContext(ctx).
		Model(&models.FunnelSnapshot{}).
		Order("created_at desc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListFunnelSnapshots(ctx context.Context, params repository.ListFunnelSnapshotsParams) ([]models.FunnelSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.FunnelSnapshot{})
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.FunnelSnapshot
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

var _ repository.Repository = (*Store)(nil)
