package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deal types as reported by the terminal.
const (
	DealTypeBuy       = 0
	DealTypeSell      = 1
	DealTypeBalanceOp = 2
)

// Deal is one immutable historical deal record pulled from the terminal.
// Rows are append-only; the analytics engine reads them, never writes.
type Deal struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Ticket int64  `gorm:"not null;uniqueIndex"`
	Order  int64  `gorm:"column:order_id;not null"`

	Time time.Time `gorm:"type:timestamptz;not null;index"`
	Type int       `gorm:"not null;index"`

	Entry      int   `gorm:"not null"`
	Magic      int64 `gorm:"not null;index"`
	PositionID int64 `gorm:"not null"`
	Reason     int   `gorm:"not null"`

	Volume     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price      decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Commission decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Swap       decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Profit     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Fee        decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	Symbol  string `gorm:"type:varchar(32);index"`
	Comment string `gorm:"type:varchar(64)"`

	AccountNumber int64  `gorm:"not null;index"`
	ExternalID    string `gorm:"type:varchar(64)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Deal) TableName() string {
	return "deals"
}

// IsTrading reports whether the deal is a market trade rather than a
// balance operation.
func (d Deal) IsTrading() bool {
	return d.Type == DealTypeBuy || d.Type == DealTypeSell
}
