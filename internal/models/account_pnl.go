package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountPnL is the externally maintained "true P&L" figure for an account:
// profit already adjusted to exclude non-trading balance movements. The fee
// engine reads it and never recomputes it.
type AccountPnL struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	AccountID int64  `gorm:"not null;uniqueIndex"`

	TruePnL decimal.Decimal `gorm:"column:true_pnl;type:numeric(30,10);not null"`

	AsOf      time.Time `gorm:"type:timestamptz;not null"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (AccountPnL) TableName() string {
	return "account_pnl"
}
