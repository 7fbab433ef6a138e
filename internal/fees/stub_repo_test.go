package fees

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"mt5bridge/internal/models"
	"mt5bridge/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository
// covering the slices the fee engine touches: managers, account P&L, daily
// snapshots and the fee-transaction ledger.
type stubRepo struct {
	managers  []models.Manager
	pnl       map[int64]decimal.Decimal
	snapshots []models.DailyFeeSnapshot
	txs       []models.FeeTransaction

	accrualUpdates int
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) UpsertDeals(ctx context.Context, items []models.Deal) (int64, error) {
	return 0, nil
}
func (s *stubRepo) ListDeals(ctx context.Context, filter repository.DealFilter, limit int) ([]models.Deal, error) {
	return nil, nil
}
func (s *stubRepo) CountDeals(ctx context.Context, filter repository.DealFilter) (int64, error) {
	return 0, nil
}

func (s *stubRepo) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	return nil, nil
}
func (s *stubRepo) SaveSyncState(ctx context.Context, state *models.SyncState) error { return nil }

func (s *stubRepo) ListManagers(ctx context.Context) ([]models.Manager, error) {
	return s.managers, nil
}

func (s *stubRepo) ListActiveManagers(ctx context.Context) ([]models.Manager, error) {
	out := make([]models.Manager, 0, len(s.managers))
	for _, m := range s.managers {
		if m.Status == models.ManagerStatusActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubRepo) GetManagerByID(ctx context.Context, id uint64) (*models.Manager, error) {
	for i := range s.managers {
		if s.managers[i].ID == id {
			return &s.managers[i], nil
		}
	}
	return nil, nil
}

func (s *stubRepo) UpdateManagerAccruals(ctx context.Context, id uint64, profit, fee decimal.Decimal) error {
	s.accrualUpdates++
	for i := range s.managers {
		if s.managers[i].ID == id {
			s.managers[i].CurrentMonthProfit = profit
			s.managers[i].CurrentMonthFeeAccrued = fee
		}
	}
	return nil
}

func (s *stubRepo) MagicNames(ctx context.Context) (map[int64]string, error) { return nil, nil }

func (s *stubRepo) GetDailyFeeSnapshot(ctx context.Context, date time.Time, accountID int64) (*models.DailyFeeSnapshot, error) {
	for i := range s.snapshots {
		if s.snapshots[i].Date.Equal(date) && s.snapshots[i].AccountID == accountID {
			return &s.snapshots[i], nil
		}
	}
	return nil, nil
}

func (s *stubRepo) GetLatestFeeSnapshotBefore(ctx context.Context, date time.Time, accountID int64) (*models.DailyFeeSnapshot, error) {
	var latest *models.DailyFeeSnapshot
	for i := range s.snapshots {
		snap := &s.snapshots[i]
		if snap.AccountID != accountID || !snap.Date.Before(date) {
			continue
		}
		if latest == nil || snap.Date.After(latest.Date) {
			latest = snap
		}
	}
	return latest, nil
}

func (s *stubRepo) UpsertDailyFeeSnapshot(ctx context.Context, item *models.DailyFeeSnapshot) error {
	for i := range s.snapshots {
		if s.snapshots[i].Date.Equal(item.Date) && s.snapshots[i].AccountID == item.AccountID {
			s.snapshots[i] = *item
			return nil
		}
	}
	s.snapshots = append(s.snapshots, *item)
	return nil
}

func (s *stubRepo) InsertFeeTransactionTx(ctx context.Context, tx *gorm.DB, item *models.FeeTransaction) error {
	item.ID = uint64(len(s.txs) + 1)
	s.txs = append(s.txs, *item)
	return nil
}

func (s *stubRepo) FinalizeManagerTx(ctx context.Context, tx *gorm.DB, id uint64, ytdFees decimal.Decimal) error {
	for i := range s.managers {
		if s.managers[i].ID == id {
			s.managers[i].YTDFeesAccrued = ytdFees
			s.managers[i].CurrentMonthProfit = decimal.Zero
			s.managers[i].CurrentMonthFeeAccrued = decimal.Zero
		}
	}
	return nil
}

func (s *stubRepo) CountFeeTransactionsForPeriod(ctx context.Context, managerID uint64, periodStart time.Time) (int64, error) {
	var n int64
	for _, tx := range s.txs {
		if tx.ManagerID == managerID && tx.PeriodStart.Equal(periodStart) {
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) ListFeeTransactionsOverlapping(ctx context.Context, start, end time.Time) ([]models.FeeTransaction, error) {
	out := make([]models.FeeTransaction, 0, len(s.txs))
	for _, tx := range s.txs {
		if tx.PeriodStart.After(end) || tx.PeriodEnd.Before(start) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *stubRepo) GetAccountPnL(ctx context.Context, accountID int64) (*models.AccountPnL, error) {
	value, ok := s.pnl[accountID]
	if !ok {
		return nil, nil
	}
	return &models.AccountPnL{AccountID: accountID, TruePnL: value}, nil
}

func (s *stubRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	return nil, nil
}
func (s *stubRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	return nil
}
