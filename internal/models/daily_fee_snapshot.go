package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyFeeSnapshot tracks fee accrual per (date, account). One row per pair,
// upserted by the fee engine; Delta is today's accrual minus yesterday's.
type DailyFeeSnapshot struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Date      time.Time `gorm:"type:date;not null;uniqueIndex:idx_fee_snapshot_date_account"`
	ManagerID uint64    `gorm:"not null;index"`
	AccountID int64     `gorm:"not null;uniqueIndex:idx_fee_snapshot_date_account"`

	TruePnLToDate       decimal.Decimal `gorm:"column:true_pnl_to_date;type:numeric(30,10);not null"`
	FeeAccruedToday     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	FeeAccruedYesterday decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Delta               decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (DailyFeeSnapshot) TableName() string {
	return "daily_fee_snapshots"
}
