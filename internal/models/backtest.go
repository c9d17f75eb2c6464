package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	BacktestPending   = "pending"
	BacktestRunning   = "running"
	BacktestCompleted = "completed"
	BacktestFailed    = "failed"
)

// BacktestRun carries only the summary; the heavy equity curve and trade log
// live in BacktestArtifact so listing stays cheap.
type BacktestRun struct {
	ID                uint64          `gorm:"primaryKey;autoIncrement"`
	StrategyVersionID uint64          `gorm:"not null;index"`
	StrategyVersion   StrategyVersion `gorm:"foreignKey:StrategyVersionID"`

	Symbol    string    `gorm:"type:varchar(20);not null;index"`
	Timeframe string    `gorm:"type:varchar(10);not null"`
	StartDate time.Time `gorm:"type:timestamptz;not null"`
	EndDate   time.Time `gorm:"type:timestamptz;not null"`

	Params          datatypes.JSON  `gorm:"type:jsonb"`
	StartingCapital decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	// Status transitions forward only: pending -> running -> completed|failed.
	Status      string `gorm:"type:varchar(20);not null;default:'pending';index"`
	ErrorReason string `gorm:"type:text"`

	Metrics datatypes.JSON `gorm:"type:jsonb"`

	StartedAt  *time.Time `gorm:"type:timestamptz"`
	FinishedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt  time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt  time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (BacktestRun) TableName() string {
	return "backtest_runs"
}

type BacktestArtifact struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement"`
	RunID uint64 `gorm:"not null;uniqueIndex"`

	EquityCurve datatypes.JSON `gorm:"type:jsonb"`
	TradeLog    datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (BacktestArtifact) TableName() string {
	return "backtest_artifacts"
}
