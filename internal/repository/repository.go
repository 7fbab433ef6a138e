package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"mt5bridge/internal/models"
)

// DealFilter narrows deal-store queries. Nil fields match everything.
type DealFilter struct {
	AccountID *int64
	Start     *time.Time
	End       *time.Time
	Symbol    *string
	DealType  *int
}

type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Deal history (append-only; ingestion writes, analytics reads).
	UpsertDeals(ctx context.Context, items []models.Deal) (int64, error)
	ListDeals(ctx context.Context, filter DealFilter, limit int) ([]models.Deal, error)
	CountDeals(ctx context.Context, filter DealFilter) (int64, error)

	// Ingestion cursors.
	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error

	// Manager configuration.
	ListManagers(ctx context.Context) ([]models.Manager, error)
	ListActiveManagers(ctx context.Context) ([]models.Manager, error)
	GetManagerByID(ctx context.Context, id uint64) (*models.Manager, error)
	UpdateManagerAccruals(ctx context.Context, id uint64, profit, fee decimal.Decimal) error
	// MagicNames maps magic numbers to manager display names.
	MagicNames(ctx context.Context) (map[int64]string, error)

	// Daily fee snapshots (one row per date+account, upserted).
	GetDailyFeeSnapshot(ctx context.Context, date time.Time, accountID int64) (*models.DailyFeeSnapshot, error)
	GetLatestFeeSnapshotBefore(ctx context.Context, date time.Time, accountID int64) (*models.DailyFeeSnapshot, error)
	UpsertDailyFeeSnapshot(ctx context.Context, item *models.DailyFeeSnapshot) error

	// Fee transaction ledger (append-only).
	InsertFeeTransactionTx(ctx context.Context, tx *gorm.DB, item *models.FeeTransaction) error
	FinalizeManagerTx(ctx context.Context, tx *gorm.DB, id uint64, ytdFees decimal.Decimal) error
	CountFeeTransactionsForPeriod(ctx context.Context, managerID uint64, periodStart time.Time) (int64, error)
	ListFeeTransactionsOverlapping(ctx context.Context, start, end time.Time) ([]models.FeeTransaction, error)

	// External true-P&L input.
	GetAccountPnL(ctx context.Context, accountID int64) (*models.AccountPnL, error)

	// System settings.
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
}
