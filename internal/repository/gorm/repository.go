package gormrepository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mt5bridge/internal/models"
	"mt5bridge/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Deals ------------------------------------------------------------------

func (s *Store) UpsertDeals(ctx context.Context, items []models.Deal) (int64, error) {
	if s == nil || s.db == nil || len(items) == 0 {
		return 0, nil
	}
	// Deal history is append-only: a ticket already present stays untouched.
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticket"}},
		DoNothing: true,
	}).CreateInBatches(items, 200)
	return res.RowsAffected, res.Error
}

func (s *Store) ListDeals(ctx context.Context, filter repository.DealFilter, limit int) ([]models.Deal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyDealFilter(s.db.WithContext(ctx).Model(&models.Deal{}), filter).
		Order("time desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var items []models.Deal
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountDeals(ctx context.Context, filter repository.DealFilter) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := applyDealFilter(s.db.WithContext(ctx).Model(&models.Deal{}), filter).
		Count(&total).Error
	return total, err
}

func applyDealFilter(query *gorm.DB, filter repository.DealFilter) *gorm.DB {
	if filter.AccountID != nil {
		query = query.Where("account_number = ?", *filter.AccountID)
	}
	if filter.Start != nil && !filter.Start.IsZero() {
		query = query.Where("time >= ?", *filter.Start)
	}
	if filter.End != nil && !filter.End.IsZero() {
		query = query.Where("time <= ?", *filter.End)
	}
	if filter.Symbol != nil && strings.TrimSpace(*filter.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*filter.Symbol))
	}
	if filter.DealType != nil {
		query = query.Where("type = ?", *filter.DealType)
	}
	return query
}

// --- Sync state -------------------------------------------------------------

func (s *Store) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SyncState
	err := s.db.WithContext(ctx).Where("scope = ?", scope).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"watermark_ts",
			"last_success_at",
			"last_attempt_at",
			"last_error",
		}),
	}).Create(state).Error
}

// --- Managers ---------------------------------------------------------------

func (s *Store) ListManagers(ctx context.Context) ([]models.Manager, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Manager
	if err := s.db.WithContext(ctx).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveManagers(ctx context.Context) ([]models.Manager, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Manager
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.ManagerStatusActive).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetManagerByID(ctx context.Context, id uint64) (*models.Manager, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Manager
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateManagerAccruals(ctx context.Context, id uint64, profit, fee decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Manager{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_month_profit":      profit,
			"current_month_fee_accrued": fee,
			"updated_at":                time.Now().UTC(),
		}).Error
}

func (s *Store) MagicNames(ctx context.Context) (map[int64]string, error) {
	managers, err := s.ListManagers(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string)
	for _, m := range managers {
		if len(m.Magics) == 0 {
			continue
		}
		var magics []int64
		if err := json.Unmarshal(m.Magics, &magics); err != nil {
			continue
		}
		for _, magic := range magics {
			out[magic] = m.DisplayName
		}
	}
	return out, nil
}

// --- Daily fee snapshots ----------------------------------------------------

func (s *Store) GetDailyFeeSnapshot(ctx context.Context, date time.Time, accountID int64) (*models.DailyFeeSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.DailyFeeSnapshot
	err := s.db.WithContext(ctx).
		Where("date = ? AND account_id = ?", dateOnly(date), accountID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetLatestFeeSnapshotBefore(ctx context.Context, date time.Time, accountID int64) (*models.DailyFeeSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.DailyFeeSnapshot
	err := s.db.WithContext(ctx).
		Where("date < ? AND account_id = ?", dateOnly(date), accountID).
		Order("date desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertDailyFeeSnapshot(ctx context.Context, item *models.DailyFeeSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Date = dateOnly(item.Date)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}, {Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"manager_id",
			"true_pnl_to_date",
			"fee_accrued_today",
			"fee_accrued_yesterday",
			"delta",
			"updated_at",
		}),
	}).Create(item).Error
}

// --- Fee transactions -------------------------------------------------------

func (s *Store) InsertFeeTransactionTx(ctx context.Context, tx *gorm.DB, item *models.FeeTransaction) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) FinalizeManagerTx(ctx context.Context, tx *gorm.DB, id uint64, ytdFees decimal.Decimal) error {
	if tx == nil {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.Manager{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"ytd_fees_accrued":          ytdFees,
			"current_month_profit":      decimal.Zero,
			"current_month_fee_accrued": decimal.Zero,
			"updated_at":                time.Now().UTC(),
		}).Error
}

func (s *Store) CountFeeTransactionsForPeriod(ctx context.Context, managerID uint64, periodStart time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.FeeTransaction{}).
		Where("manager_id = ? AND period_start = ?", managerID, dateOnly(periodStart)).
		Count(&total).Error
	return total, err
}

func (s *Store) ListFeeTransactionsOverlapping(ctx context.Context, start, end time.Time) ([]models.FeeTransaction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.FeeTransaction
	if err := s.db.WithContext(ctx).
		Where("period_start <= ? AND period_end >= ?", dateOnly(end), dateOnly(start)).
		Order("period_start asc, manager_id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Account P&L ------------------------------------------------------------

func (s *Store) GetAccountPnL(ctx context.Context, accountID int64) (*models.AccountPnL, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.AccountPnL
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- System settings --------------------------------------------------------

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
	}).Create(item).Error
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
