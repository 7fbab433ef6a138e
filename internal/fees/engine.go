// Package fees accrues and finalizes manager performance fees from
// externally supplied true-P&L figures.
package fees

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mt5bridge/internal/models"
	"mt5bridge/internal/repository"
)

// ErrFinalizationConflict means a fee transaction already exists for the
// requested (manager, period). The attempt leaves no partial state: no
// transactions are created and no manager counters are mutated.
var ErrFinalizationConflict = errors.New("fee period already finalized")

type Engine struct {
	Repo   repository.Repository
	Logger *zap.Logger

	// Serializes finalization in-process; the unique index on
	// (manager_id, period_start) guards against concurrent processes.
	finalizeMu sync.Mutex
}

// ManagerFee is one manager's current accrual, rounded for presentation.
type ManagerFee struct {
	ManagerID          uint64          `json:"managerId"`
	ManagerName        string          `json:"managerName"`
	AccountID          int64           `json:"accountId"`
	FeeRate            decimal.Decimal `json:"feeRate"`
	TruePnL            decimal.Decimal `json:"truePnl"`
	ProfitSubjectToFee decimal.Decimal `json:"profitSubjectToFee"`
	FeeAmount          decimal.Decimal `json:"feeAmount"`
	NetProfit          decimal.Decimal `json:"netProfit"`
}

type AccrualReport struct {
	Managers            []ManagerFee    `json:"managers"`
	TotalTruePnL        decimal.Decimal `json:"totalTruePnl"`
	TotalFees           decimal.Decimal `json:"totalFees"`
	NetProfitAfterFees  decimal.Decimal `json:"netProfitAfterFees"`
	ManagersWithFees    int             `json:"managersWithFees"`
	FeeImpactPercentage decimal.Decimal `json:"feeImpactPercentage"`
}

// CashFlowEntry is the liabilities view: managers currently owed a fee.
type CashFlowEntry struct {
	ManagerID   uint64          `json:"managerId"`
	ManagerName string          `json:"managerName"`
	AccountID   int64           `json:"accountId"`
	FeeAmount   decimal.Decimal `json:"feeAmount"`
}

type CashFlowReport struct {
	Entries        []CashFlowEntry `json:"entries"`
	TotalLiability decimal.Decimal `json:"totalLiability"`
}

type MonthlySummary struct {
	Year           int                     `json:"year"`
	Month          int                     `json:"month"`
	AccruedFees    decimal.Decimal         `json:"accruedFees"`
	FinalizedFees  decimal.Decimal         `json:"finalizedFees"`
	PaidFees       decimal.Decimal         `json:"paidFees"`
	PendingPayment decimal.Decimal         `json:"pendingPayment"`
	Transactions   []models.FeeTransaction `json:"transactions"`
}

// managerAccrual keeps full precision; rounding happens only when a
// report leaves the engine.
type managerAccrual struct {
	manager      models.Manager
	accountID    int64
	truePnl      decimal.Decimal
	profitForFee decimal.Decimal
	fee          decimal.Decimal
	net          decimal.Decimal
}

// CalculateCurrentFees runs a full accrual pass over every active
// manager, persisting manager counters and today's daily snapshot, and
// returns the per-manager breakdown plus aggregate totals.
func (e *Engine) CalculateCurrentFees(ctx context.Context) (AccrualReport, error) {
	accruals, err := e.accrue(ctx, true)
	if err != nil {
		return AccrualReport{}, err
	}
	return buildReport(accruals), nil
}

// ForCashFlow is a read-only projection restricted to managers with a
// positive accrued fee.
func (e *Engine) ForCashFlow(ctx context.Context) (CashFlowReport, error) {
	accruals, err := e.accrue(ctx, false)
	if err != nil {
		return CashFlowReport{}, err
	}
	report := CashFlowReport{Entries: []CashFlowEntry{}}
	total := decimal.Zero
	for _, a := range accruals {
		if !a.fee.IsPositive() {
			continue
		}
		report.Entries = append(report.Entries, CashFlowEntry{
			ManagerID:   a.manager.ID,
			ManagerName: a.manager.DisplayName,
			AccountID:   a.accountID,
			FeeAmount:   a.fee.Round(2),
		})
		total = total.Add(a.fee)
	}
	report.TotalLiability = total.Round(2)
	return report, nil
}

// Summary combines the live accrual (when the requested month is the
// current one) with previously finalized transactions overlapping it.
func (e *Engine) Summary(ctx context.Context, year, month int) (MonthlySummary, error) {
	now := time.Now().UTC()
	if year == 0 {
		year = now.Year()
	}
	if month < 1 || month > 12 {
		month = int(now.Month())
	}
	start, end := monthBounds(year, month)

	txs, err := e.Repo.ListFeeTransactionsOverlapping(ctx, start, end)
	if err != nil {
		return MonthlySummary{}, err
	}

	finalized := decimal.Zero
	paid := decimal.Zero
	for _, tx := range txs {
		finalized = finalized.Add(tx.FeeCalculated)
		if tx.FeeStatus == models.FeeStatusPaid {
			paid = paid.Add(tx.FeeCalculated)
		}
	}

	live := decimal.Zero
	if year == now.Year() && month == int(now.Month()) {
		accruals, err := e.accrue(ctx, false)
		if err != nil {
			return MonthlySummary{}, err
		}
		for _, a := range accruals {
			if a.fee.IsPositive() {
				live = live.Add(a.fee)
			}
		}
	}

	accrued := finalized.Add(live)
	if txs == nil {
		txs = []models.FeeTransaction{}
	}
	return MonthlySummary{
		Year:           year,
		Month:          month,
		AccruedFees:    accrued.Round(2),
		FinalizedFees:  finalized.Round(2),
		PaidFees:       paid.Round(2),
		PendingPayment: accrued.Sub(paid).Round(2),
		Transactions:   txs,
	}, nil
}

// FinalizeMonth converts the current accrual into immutable ledger
// transactions for every manager owed a fee, bumping YTD totals and
// resetting month counters. A duplicate attempt for any (manager, period)
// fails the whole call before any state is touched.
func (e *Engine) FinalizeMonth(ctx context.Context, year, month int) ([]models.FeeTransaction, error) {
	if year < 1970 || year > 9999 {
		return nil, fmt.Errorf("invalid year %d", year)
	}
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month %d", month)
	}
	e.finalizeMu.Lock()
	defer e.finalizeMu.Unlock()

	accruals, err := e.accrue(ctx, false)
	if err != nil {
		return nil, err
	}
	periodStart, periodEnd := monthBounds(year, month)

	owed := make([]managerAccrual, 0, len(accruals))
	for _, a := range accruals {
		if a.fee.IsPositive() {
			owed = append(owed, a)
		}
	}

	// Conflict check up front so a duplicate finalize mutates nothing.
	for _, a := range owed {
		count, err := e.Repo.CountFeeTransactionsForPeriod(ctx, a.manager.ID, periodStart)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, fmt.Errorf("%w: manager %d, period %04d-%02d",
				ErrFinalizationConflict, a.manager.ID, year, month)
		}
	}

	created := make([]models.FeeTransaction, 0, len(owed))
	err = e.Repo.InTx(ctx, func(tx *gorm.DB) error {
		for _, a := range owed {
			item := models.FeeTransaction{
				ManagerID:          a.manager.ID,
				AccountID:          a.accountID,
				PeriodStart:        periodStart,
				PeriodEnd:          periodEnd,
				TotalProfit:        a.truePnl,
				FeeRate:            a.manager.FeeRate,
				ProfitSubjectToFee: a.profitForFee,
				FeeCalculated:      a.fee,
				FeeStatus:          models.FeeStatusAccrued,
				VerificationStatus: "unverified",
			}
			if err := e.Repo.InsertFeeTransactionTx(ctx, tx, &item); err != nil {
				return err
			}
			ytd := a.manager.YTDFeesAccrued.Add(a.fee)
			if err := e.Repo.FinalizeManagerTx(ctx, tx, a.manager.ID, ytd); err != nil {
				return err
			}
			created = append(created, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.Logger != nil {
		e.Logger.Info("month finalized",
			zap.Int("year", year),
			zap.Int("month", month),
			zap.Int("transactions", len(created)),
		)
	}
	return created, nil
}

func (e *Engine) accrue(ctx context.Context, persist bool) ([]managerAccrual, error) {
	managers, err := e.Repo.ListActiveManagers(ctx)
	if err != nil {
		return nil, err
	}
	today := dateOnly(time.Now().UTC())

	out := make([]managerAccrual, 0, len(managers))
	for _, m := range managers {
		accountID, ok := firstAssignedAccount(m)
		if !ok {
			if e.Logger != nil {
				e.Logger.Warn("manager has no assigned accounts, skipping",
					zap.Uint64("manager", m.ID))
			}
			continue
		}

		truePnl := decimal.Zero
		pnlRow, err := e.Repo.GetAccountPnL(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if pnlRow != nil {
			truePnl = pnlRow.TruePnL
		}

		// Losses never generate fees.
		profitForFee := truePnl
		if profitForFee.IsNegative() {
			profitForFee = decimal.Zero
		}
		fee := profitForFee.Mul(m.FeeRate)

		a := managerAccrual{
			manager:      m,
			accountID:    accountID,
			truePnl:      truePnl,
			profitForFee: profitForFee,
			fee:          fee,
			net:          truePnl.Sub(fee),
		}
		out = append(out, a)

		if !persist {
			continue
		}
		if err := e.Repo.UpdateManagerAccruals(ctx, m.ID, truePnl, fee); err != nil {
			return nil, err
		}
		yesterday := decimal.Zero
		prev, err := e.Repo.GetLatestFeeSnapshotBefore(ctx, today, accountID)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			yesterday = prev.FeeAccruedToday
		}
		snapshot := &models.DailyFeeSnapshot{
			Date:                today,
			ManagerID:           m.ID,
			AccountID:           accountID,
			TruePnLToDate:       truePnl,
			FeeAccruedToday:     fee,
			FeeAccruedYesterday: yesterday,
			Delta:               fee.Sub(yesterday),
		}
		if err := e.Repo.UpsertDailyFeeSnapshot(ctx, snapshot); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func buildReport(accruals []managerAccrual) AccrualReport {
	report := AccrualReport{
		Managers:     make([]ManagerFee, 0, len(accruals)),
		TotalTruePnL: decimal.Zero,
		TotalFees:    decimal.Zero,
	}
	totalPnl := decimal.Zero
	totalFees := decimal.Zero
	totalNet := decimal.Zero
	for _, a := range accruals {
		report.Managers = append(report.Managers, ManagerFee{
			ManagerID:          a.manager.ID,
			ManagerName:        a.manager.DisplayName,
			AccountID:          a.accountID,
			FeeRate:            a.manager.FeeRate,
			TruePnL:            a.truePnl.Round(2),
			ProfitSubjectToFee: a.profitForFee.Round(2),
			FeeAmount:          a.fee.Round(2),
			NetProfit:          a.net.Round(2),
		})
		totalPnl = totalPnl.Add(a.truePnl)
		totalFees = totalFees.Add(a.fee)
		totalNet = totalNet.Add(a.net)
		if a.fee.IsPositive() {
			report.ManagersWithFees++
		}
	}
	report.TotalTruePnL = totalPnl.Round(2)
	report.TotalFees = totalFees.Round(2)
	report.NetProfitAfterFees = totalNet.Round(2)
	if totalPnl.IsPositive() {
		report.FeeImpactPercentage = totalFees.
			Div(totalPnl).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	} else {
		report.FeeImpactPercentage = decimal.Zero
	}
	return report
}

func firstAssignedAccount(m models.Manager) (int64, bool) {
	if len(m.AssignedAccounts) == 0 {
		return 0, false
	}
	var accounts []int64
	if err := json.Unmarshal(m.AssignedAccounts, &accounts); err != nil || len(accounts) == 0 {
		return 0, false
	}
	return accounts[0], true
}

func monthBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start, end
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
