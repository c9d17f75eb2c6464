package models

import (
	"time"

	"gorm.io/datatypes"
)

// Strategy identity is immutable after creation; behavior changes go through
// StrategyVersion rows.
type Strategy struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Slug        string `gorm:"type:varchar(80);uniqueIndex;not null"`
	Name        string `gorm:"type:varchar(120);not null"`
	Description string `gorm:"type:text"`
	Category    string `gorm:"type:varchar(30);not null;index"`
	MarketType  string `gorm:"type:varchar(20);not null;default:'equity'"`

	Enabled bool `gorm:"default:false;index"`

	// UserID is nil for system strategies.
	UserID *uint64 `gorm:"index"`

	Timeframes datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Strategy) TableName() string {
	return "strategies"
}

// StrategyVersion is append-only: a behavior change always creates a new row.
// At most one version per strategy carries IsDefault.
type StrategyVersion struct {
	ID         uint64   `gorm:"primaryKey;autoIncrement"`
	StrategyID uint64   `gorm:"not null;uniqueIndex:idx_strategy_version,priority:1"`
	Strategy   Strategy `gorm:"foreignKey:StrategyID"`

	Version  int    `gorm:"not null;uniqueIndex:idx_strategy_version,priority:2"`
	LogicKey string `gorm:"type:varchar(50);not null;index"`

	ParamsSchema datatypes.JSON `gorm:"type:jsonb"`
	Params       datatypes.JSON `gorm:"type:jsonb;not null"`
	// CustomRules holds the declarative rule grammar for user-authored logic.
	CustomRules datatypes.JSON `gorm:"type:jsonb"`

	IsDefault bool `gorm:"default:false;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (StrategyVersion) TableName() string {
	return "strategy_versions"
}
