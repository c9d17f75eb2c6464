package models

import (
	"time"

	"gorm.io/datatypes"
)

// FunnelSnapshot records one screener pass: per-stage drop counts plus the
// scored survivors, for the execution-quality stats endpoint.
type FunnelSnapshot struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	UniverseSize    int `gorm:"not null"`
	FailedData      int `gorm:"not null"`
	FailedLiquidity int `gorm:"not null"`
	FailedMomentum  int `gorm:"not null"`
	FailedVol       int `gorm:"not null"`
	FailedMicro     int `gorm:"not null"`
	BelowThreshold  int `gorm:"not null"`
	Passed          int `gorm:"not null"`

	Scored datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (FunnelSnapshot) TableName() string {
	return "funnel_snapshots"
}
