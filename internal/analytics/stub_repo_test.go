package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"mt5bridge/internal/models"
	"mt5bridge/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// Analytics tests only exercise the deal queries and the magic-name map.
type stubRepo struct {
	deals      []models.Deal
	magicNames map[int64]string
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) UpsertDeals(ctx context.Context, items []models.Deal) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ListDeals(ctx context.Context, filter repository.DealFilter, limit int) ([]models.Deal, error) {
	out := make([]models.Deal, 0, len(s.deals))
	for _, d := range s.deals {
		if filter.AccountID != nil && d.AccountNumber != *filter.AccountID {
			continue
		}
		if filter.DealType != nil && d.Type != *filter.DealType {
			continue
		}
		if filter.Symbol != nil && d.Symbol != *filter.Symbol {
			continue
		}
		if filter.Start != nil && d.Time.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && d.Time.After(*filter.End) {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *stubRepo) CountDeals(ctx context.Context, filter repository.DealFilter) (int64, error) {
	items, err := s.ListDeals(ctx, filter, 0)
	return int64(len(items)), err
}

func (s *stubRepo) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	return nil, nil
}
func (s *stubRepo) SaveSyncState(ctx context.Context, state *models.SyncState) error { return nil }

func (s *stubRepo) ListManagers(ctx context.Context) ([]models.Manager, error)       { return nil, nil }
func (s *stubRepo) ListActiveManagers(ctx context.Context) ([]models.Manager, error) { return nil, nil }
func (s *stubRepo) GetManagerByID(ctx context.Context, id uint64) (*models.Manager, error) {
	return nil, nil
}
func (s *stubRepo) UpdateManagerAccruals(ctx context.Context, id uint64, profit, fee decimal.Decimal) error {
	return nil
}

func (s *stubRepo) MagicNames(ctx context.Context) (map[int64]string, error) {
	return s.magicNames, nil
}

func (s *stubRepo) GetDailyFeeSnapshot(ctx context.Context, date time.Time, accountID int64) (*models.DailyFeeSnapshot, error) {
	return nil, nil
}
func (s *stubRepo) GetLatestFeeSnapshotBefore(ctx context.Context, date time.Time, accountID int64) (*models.DailyFeeSnapshot, error) {
	return nil, nil
}
func (s *stubRepo) UpsertDailyFeeSnapshot(ctx context.Context, item *models.DailyFeeSnapshot) error {
	return nil
}

func (s *stubRepo) InsertFeeTransactionTx(ctx context.Context, tx *gorm.DB, item *models.FeeTransaction) error {
	return nil
}
func (s *stubRepo) FinalizeManagerTx(ctx context.Context, tx *gorm.DB, id uint64, ytdFees decimal.Decimal) error {
	return nil
}
func (s *stubRepo) CountFeeTransactionsForPeriod(ctx context.Context, managerID uint64, periodStart time.Time) (int64, error) {
	return 0, nil
}
func (s *stubRepo) ListFeeTransactionsOverlapping(ctx context.Context, start, end time.Time) ([]models.FeeTransaction, error) {
	return nil, nil
}

func (s *stubRepo) GetAccountPnL(ctx context.Context, accountID int64) (*models.AccountPnL, error) {
	return nil, nil
}

func (s *stubRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	return nil, nil
}
func (s *stubRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	return nil
}
