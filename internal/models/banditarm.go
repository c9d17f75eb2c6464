package models

import "time"

// BanditArm tracks the Beta posterior for one strategy family. Counters only
// move forward on reward events; the sole exception is an explicit operator
// reset back to Beta(1,1).
type BanditArm struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Family string `gorm:"type:varchar(50);uniqueIndex;not null"`

	Alpha float64 `gorm:"not null;default:1"`
	Beta  float64 `gorm:"not null;default:1"`

	Wins   int64 `gorm:"not null;default:0"`
	Losses int64 `gorm:"not null;default:0"`

	WinRate    float64 `gorm:"not null;default:0.5"`
	Confidence float64 `gorm:"not null;default:2"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (BanditArm) TableName() string {
	return "bandit_arms"
}
