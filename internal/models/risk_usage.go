package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyRiskUsage is one of the two genuinely contended rows (the other is
// BanditArm). It is only ever mutated inside a row-locked transaction through
// the repository's ConsumeDailyNotional / AddRealizedLoss operations.
type DailyRiskUsage struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	UserID uint64 `gorm:"not null;uniqueIndex:idx_user_day,priority:1"`
	// Day is the UTC date truncated to midnight.
	Day time.Time `gorm:"type:date;not null;uniqueIndex:idx_user_day,priority:2"`

	UsedNotional decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	RealizedLoss decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	// CircuitBroken latches for the remainder of the day once the user's
	// daily-loss limit is breached.
	CircuitBroken bool `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (DailyRiskUsage) TableName() string {
	return "daily_risk_usage"
}
