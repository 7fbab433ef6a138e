package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FeeStatusAccrued = "accrued"
	FeeStatusPaid    = "paid"
)

// FeeTransaction is one finalized performance-fee ledger entry. Immutable
// once created; the only forward transition is accrued -> paid, driven by
// an external payment process.
type FeeTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	ManagerID uint64 `gorm:"not null;uniqueIndex:idx_fee_tx_manager_period"`
	AccountID int64  `gorm:"not null;index"`

	PeriodStart time.Time `gorm:"type:date;not null;uniqueIndex:idx_fee_tx_manager_period"`
	PeriodEnd   time.Time `gorm:"type:date;not null"`

	TotalProfit        decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	FeeRate            decimal.Decimal `gorm:"type:numeric(10,6);not null"`
	ProfitSubjectToFee decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	FeeCalculated      decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	FeeStatus          string `gorm:"type:varchar(20);not null;default:accrued;index"`
	VerificationStatus string `gorm:"type:varchar(20);not null;default:unverified"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (FeeTransaction) TableName() string {
	return "fee_transactions"
}
