package db

import (
	"tradesignal/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Strategy{},
		&models.StrategyVersion{},
		&models.Signal{},
		&models.UserStrategySettings{},
		&models.AutoTradingSettings{},
		&models.BacktestRun{},
		&models.BacktestArtifact{},
		&models.BanditArm{},
		&models.Order{},
		&models.DailyRiskUsage{},
		&models.FunnelSnapshot{},
	)
}
