package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	SignalEntryLong  = "entry_long"
	SignalEntryShort = "entry_short"
	SignalExit       = "exit"
	SignalStop       = "stop"
	SignalTakeProfit = "take_profit"
)

// Signal is immutable once created; it links to at most one broker order.
type Signal struct {
	ID                uint64          `gorm:"primaryKey;autoIncrement"`
	StrategyVersionID uint64          `gorm:"not null;index"`
	StrategyVersion   StrategyVersion `gorm:"foreignKey:StrategyVersionID"`

	Symbol     string `gorm:"type:varchar(20);not null;index"`
	Timeframe  string `gorm:"type:varchar(10);not null"`
	SignalType string `gorm:"type:varchar(20);not null;index"`

	Price      decimal.Decimal  `gorm:"type:numeric(20,8);not null"`
	Confidence float64          `gorm:"not null"`
	Stop       *decimal.Decimal `gorm:"type:numeric(20,8)"`
	Target     *decimal.Decimal `gorm:"type:numeric(20,8)"`

	// UserID is nil for global signals.
	UserID        *uint64 `gorm:"index"`
	BrokerOrderID *string `gorm:"type:varchar(100);index"`

	Metadata datatypes.JSON `gorm:"type:jsonb"`

	ExpiresAt *time.Time `gorm:"type:timestamptz;index"`
	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Signal) TableName() string {
	return "signals"
}
