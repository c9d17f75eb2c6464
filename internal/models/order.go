package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderPending   = "pending"
	OrderSubmitted = "submitted"
	OrderFilled    = "filled"
	OrderCancelled = "cancelled"
	OrderRejected  = "rejected"
)

// Order is the engine-side record. Rejected orders are kept for audit and are
// never forwarded to the broker.
type Order struct {
	ID       uint64  `gorm:"primaryKey;autoIncrement"`
	UserID   uint64  `gorm:"not null;index"`
	SignalID *uint64 `gorm:"index"`

	Symbol string          `gorm:"type:varchar(20);not null;index"`
	Side   string          `gorm:"type:varchar(10);not null"`
	Qty    int64           `gorm:"not null"`
	Price  decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	// Notional = Price * Qty, denormalized for the daily-cap audit trail.
	Notional decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	// IdempotencyToken is caller-supplied; replays return the original order.
	IdempotencyToken string `gorm:"type:varchar(64);uniqueIndex;not null"`

	Status        string  `gorm:"type:varchar(20);not null;default:'pending';index"`
	RejectReason  string  `gorm:"type:text"`
	BrokerOrderID *string `gorm:"type:varchar(100);index"`

	SubmittedAt *time.Time `gorm:"type:timestamptz"`
	FilledAt    *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}
