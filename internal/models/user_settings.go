package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SizingFixed      = "fixed"
	SizingPercentage = "percentage"
	SizingRiskBased  = "risk_based"
)

// UserStrategySettings is the per-user opt-in for a strategy version.
type UserStrategySettings struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement"`
	UserID            uint64 `gorm:"not null;uniqueIndex:idx_user_version,priority:1"`
	StrategyVersionID uint64 `gorm:"not null;uniqueIndex:idx_user_version,priority:2"`

	Enabled   bool `gorm:"default:true;index"`
	AutoTrade bool `gorm:"default:false;index"`

	MaxConcurrentPositions int     `gorm:"default:0"`
	MaxDailyLossPct        float64 `gorm:"default:0"`

	ParamOverrides datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (UserStrategySettings) TableName() string {
	return "user_strategy_settings"
}

// AutoTradingSettings is one row per user; global guardrail knobs.
type AutoTradingSettings struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	UserID uint64 `gorm:"not null;uniqueIndex"`

	Enabled      bool   `gorm:"default:false"`
	SizingMethod string `gorm:"type:varchar(20);not null;default:'risk_based'"`

	RiskPerTradePct float64 `gorm:"default:0.01"`
	MaxPositionPct  float64 `gorm:"default:0.2"`
	MinConfidence   float64 `gorm:"default:0.6"`

	AllowedSymbols datatypes.JSON `gorm:"type:jsonb"`
	BlockedSymbols datatypes.JSON `gorm:"type:jsonb"`

	MarketHoursOnly        bool    `gorm:"default:true"`
	MaxConcurrentPositions int     `gorm:"default:5"`
	DailyLossLimitPct      float64 `gorm:"default:0.03"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (AutoTradingSettings) TableName() string {
	return "auto_trading_settings"
}
