package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	ManagerStatusActive   = "active"
	ManagerStatusInactive = "inactive"
)

// Manager is a trading-desk manager configuration record. Accrual fields
// are mutated by the fee engine each calculation cycle and reset on month
// finalization.
type Manager struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	DisplayName string `gorm:"type:varchar(100);not null"`

	// AssignedAccounts is a non-empty JSON array of account logins; the
	// first entry is the fee-bearing account.
	AssignedAccounts datatypes.JSON `gorm:"type:jsonb;not null"`

	// Magics is a JSON array of magic numbers attributed to this manager.
	Magics datatypes.JSON `gorm:"type:jsonb"`

	FeeRate decimal.Decimal `gorm:"type:numeric(10,6);not null"`

	CurrentMonthProfit     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	CurrentMonthFeeAccrued decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	YTDFeesAccrued         decimal.Decimal `gorm:"column:ytd_fees_accrued;type:numeric(30,10);not null;default:0"`

	Status string `gorm:"type:varchar(20);not null;default:active;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Manager) TableName() string {
	return "managers"
}
