// Package analytics aggregates deal history into trading summaries,
// rebates, manager attribution and daily P&L.
package analytics

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mt5bridge/internal/models"
	"mt5bridge/internal/repository"
)

// Balance-operation categories, derived from deal comments.
const (
	OpWithdrawal = "withdrawal"
	OpDeposit    = "deposit"
	OpTransfer   = "transfer"
	OpInterest   = "interest"
	OpCredit     = "credit"
	OpDebit      = "debit"
	OpOther      = "other"
)

type Engine struct {
	Repo              repository.Repository
	Logger            *zap.Logger
	DefaultRatePerLot decimal.Decimal
}

type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Summary aggregates every deal matching a filter. A filter matching
// nothing yields an all-zero summary, not an error.
type Summary struct {
	TotalDeals        int             `json:"totalDeals"`
	TotalVolume       decimal.Decimal `json:"totalVolume"`
	TotalProfit       decimal.Decimal `json:"totalProfit"`
	TotalCommission   decimal.Decimal `json:"totalCommission"`
	TotalSwap         decimal.Decimal `json:"totalSwap"`
	BuyDeals          int             `json:"buyDeals"`
	SellDeals         int             `json:"sellDeals"`
	BalanceOperations int             `json:"balanceOperations"`
	SymbolsTraded     int             `json:"symbolsTraded"`
	DateRange         *DateRange      `json:"dateRange,omitempty"`
	SkippedRecords    int             `json:"skippedRecords,omitempty"`
}

type AccountRebate struct {
	AccountID  int64           `json:"account"`
	Deals      int             `json:"deals"`
	Volume     decimal.Decimal `json:"volume"`
	Commission decimal.Decimal `json:"commission"`
	Rebates    decimal.Decimal `json:"rebates"`
}

type SymbolRebate struct {
	Symbol  string          `json:"symbol"`
	Volume  decimal.Decimal `json:"volume"`
	Rebates decimal.Decimal `json:"rebates"`
}

// RebateReport covers trading deals only; balance operations contribute
// neither volume nor rebates.
type RebateReport struct {
	RatePerLot     decimal.Decimal `json:"ratePerLot"`
	TotalDeals     int             `json:"totalDeals"`
	TotalVolume    decimal.Decimal `json:"totalVolume"`
	TotalRebates   decimal.Decimal `json:"totalRebates"`
	ByAccount      []AccountRebate `json:"byAccount"`
	TopSymbols     []SymbolRebate  `json:"topSymbols"`
	SkippedRecords int             `json:"skippedRecords,omitempty"`
}

type ManagerPerformance struct {
	Magic            int64           `json:"magic"`
	ManagerName      string          `json:"managerName"`
	DealCount        int             `json:"dealCount"`
	Volume           decimal.Decimal `json:"volume"`
	Profit           decimal.Decimal `json:"profit"`
	Commission       decimal.Decimal `json:"commission"`
	WinDeals         int             `json:"winDeals"`
	LossDeals        int             `json:"lossDeals"`
	WinRate          decimal.Decimal `json:"winRate"`
	AvgProfitPerDeal decimal.Decimal `json:"avgProfitPerDeal"`
}

type ManagerPerformanceReport struct {
	Managers       []ManagerPerformance `json:"managers"`
	SkippedRecords int                  `json:"skippedRecords,omitempty"`
}

type ClassifiedOperation struct {
	Ticket        int64           `json:"ticket"`
	Time          time.Time       `json:"time"`
	AccountNumber int64           `json:"account"`
	Profit        decimal.Decimal `json:"amount"`
	Comment       string          `json:"comment"`
	Category      string          `json:"category"`
}

type CategoryTotal struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type BalanceOpsReport struct {
	Total          int                      `json:"total"`
	Operations     []ClassifiedOperation    `json:"operations"`
	ByCategory     map[string]CategoryTotal `json:"byCategory"`
	SkippedRecords int                      `json:"skippedRecords,omitempty"`
}

type DailyPnLReport struct {
	Days           []DailyPnL `json:"days"`
	SkippedRecords int        `json:"skippedRecords,omitempty"`
}

type DailyPnL struct {
	Date       string          `json:"date"`
	Deals      int             `json:"deals"`
	Profit     decimal.Decimal `json:"profit"`
	Volume     decimal.Decimal `json:"volume"`
	Commission decimal.Decimal `json:"commission"`
	Swap       decimal.Decimal `json:"swap"`
}

// QueryDeals returns deals matching all supplied filters, newest first.
func (e *Engine) QueryDeals(ctx context.Context, filter repository.DealFilter, limit int) ([]models.Deal, error) {
	return e.Repo.ListDeals(ctx, filter, limit)
}

// Summarize aggregates all matching deals. Malformed records are skipped
// and counted rather than aborting the whole query.
func (e *Engine) Summarize(ctx context.Context, filter repository.DealFilter) (Summary, error) {
	deals, skipped, err := e.load(ctx, filter)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		TotalVolume:     decimal.Zero,
		TotalProfit:     decimal.Zero,
		TotalCommission: decimal.Zero,
		TotalSwap:       decimal.Zero,
		SkippedRecords:  skipped,
	}
	symbols := make(map[string]struct{})
	for _, d := range deals {
		sum.TotalDeals++
		sum.TotalVolume = sum.TotalVolume.Add(d.Volume)
		sum.TotalProfit = sum.TotalProfit.Add(d.Profit)
		sum.TotalCommission = sum.TotalCommission.Add(d.Commission)
		sum.TotalSwap = sum.TotalSwap.Add(d.Swap)
		switch d.Type {
		case models.DealTypeBuy:
			sum.BuyDeals++
		case models.DealTypeSell:
			sum.SellDeals++
		case models.DealTypeBalanceOp:
			sum.BalanceOperations++
		}
		if d.IsTrading() && d.Symbol != "" {
			symbols[d.Symbol] = struct{}{}
		}
		if sum.DateRange == nil {
			sum.DateRange = &DateRange{From: d.Time, To: d.Time}
		} else {
			if d.Time.Before(sum.DateRange.From) {
				sum.DateRange.From = d.Time
			}
			if d.Time.After(sum.DateRange.To) {
				sum.DateRange.To = d.Time
			}
		}
	}
	sum.SymbolsTraded = len(symbols)
	return sum, nil
}

// CalculateRebates computes per-lot rebates over trading deals only.
// A non-positive rate falls back to the configured default.
func (e *Engine) CalculateRebates(ctx context.Context, filter repository.DealFilter, ratePerLot decimal.Decimal) (RebateReport, error) {
	if !ratePerLot.IsPositive() {
		ratePerLot = e.DefaultRatePerLot
	}
	deals, skipped, err := e.load(ctx, filter)
	if err != nil {
		return RebateReport{}, err
	}

	report := RebateReport{
		RatePerLot:     ratePerLot,
		TotalVolume:    decimal.Zero,
		TotalRebates:   decimal.Zero,
		SkippedRecords: skipped,
	}
	byAccount := make(map[int64]*AccountRebate)
	bySymbol := make(map[string]*SymbolRebate)
	for _, d := range deals {
		if !d.IsTrading() {
			continue
		}
		report.TotalDeals++
		report.TotalVolume = report.TotalVolume.Add(d.Volume)

		acct, ok := byAccount[d.AccountNumber]
		if !ok {
			acct = &AccountRebate{AccountID: d.AccountNumber}
			byAccount[d.AccountNumber] = acct
		}
		acct.Deals++
		acct.Volume = acct.Volume.Add(d.Volume)
		acct.Commission = acct.Commission.Add(d.Commission)

		if d.Symbol != "" {
			sym, ok := bySymbol[d.Symbol]
			if !ok {
				sym = &SymbolRebate{Symbol: d.Symbol}
				bySymbol[d.Symbol] = sym
			}
			sym.Volume = sym.Volume.Add(d.Volume)
		}
	}
	report.TotalRebates = report.TotalVolume.Mul(ratePerLot)

	for _, acct := range byAccount {
		acct.Rebates = acct.Volume.Mul(ratePerLot)
		report.ByAccount = append(report.ByAccount, *acct)
	}
	sort.Slice(report.ByAccount, func(i, j int) bool {
		return report.ByAccount[i].AccountID < report.ByAccount[j].AccountID
	})

	for _, sym := range bySymbol {
		sym.Rebates = sym.Volume.Mul(ratePerLot)
		report.TopSymbols = append(report.TopSymbols, *sym)
	}
	sort.Slice(report.TopSymbols, func(i, j int) bool {
		return report.TopSymbols[i].Volume.GreaterThan(report.TopSymbols[j].Volume)
	})
	if len(report.TopSymbols) > 10 {
		report.TopSymbols = report.TopSymbols[:10]
	}
	return report, nil
}

// ManagerPerformance groups trading deals by magic number and resolves
// display names from the manager store, sorted by total profit descending.
func (e *Engine) ManagerPerformance(ctx context.Context, start, end *time.Time) (ManagerPerformanceReport, error) {
	deals, skipped, err := e.load(ctx, repository.DealFilter{Start: start, End: end})
	if err != nil {
		return ManagerPerformanceReport{}, err
	}
	names, err := e.Repo.MagicNames(ctx)
	if err != nil {
		return ManagerPerformanceReport{}, err
	}

	byMagic := make(map[int64]*ManagerPerformance)
	for _, d := range deals {
		if !d.IsTrading() {
			continue
		}
		perf, ok := byMagic[d.Magic]
		if !ok {
			perf = &ManagerPerformance{Magic: d.Magic}
			byMagic[d.Magic] = perf
		}
		perf.DealCount++
		perf.Volume = perf.Volume.Add(d.Volume)
		perf.Profit = perf.Profit.Add(d.Profit)
		perf.Commission = perf.Commission.Add(d.Commission)
		if d.Profit.IsPositive() {
			perf.WinDeals++
		} else if d.Profit.IsNegative() {
			perf.LossDeals++
		}
	}

	out := make([]ManagerPerformance, 0, len(byMagic))
	for _, perf := range byMagic {
		perf.ManagerName = managerName(names, perf.Magic)
		perf.WinRate = winRate(perf.WinDeals, perf.LossDeals)
		if perf.DealCount > 0 {
			perf.AvgProfitPerDeal = perf.Profit.
				Div(decimal.NewFromInt(int64(perf.DealCount))).
				Round(2)
		}
		out = append(out, *perf)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Profit.GreaterThan(out[j].Profit)
	})
	return ManagerPerformanceReport{Managers: out, SkippedRecords: skipped}, nil
}

// ClassifyBalanceOperations buckets balance operations by a priority-
// ordered, case-insensitive comment heuristic. The heuristic is
// approximate by nature; comments are free text written by the broker.
func (e *Engine) ClassifyBalanceOperations(ctx context.Context, filter repository.DealFilter) (BalanceOpsReport, error) {
	balanceOp := models.DealTypeBalanceOp
	filter.DealType = &balanceOp
	deals, skipped, err := e.load(ctx, filter)
	if err != nil {
		return BalanceOpsReport{}, err
	}

	report := BalanceOpsReport{
		Operations:     make([]ClassifiedOperation, 0, len(deals)),
		ByCategory:     make(map[string]CategoryTotal),
		SkippedRecords: skipped,
	}
	for _, d := range deals {
		category := ClassifyComment(d.Comment, d.Profit)
		report.Total++
		report.Operations = append(report.Operations, ClassifiedOperation{
			Ticket:        d.Ticket,
			Time:          d.Time,
			AccountNumber: d.AccountNumber,
			Profit:        d.Profit,
			Comment:       d.Comment,
			Category:      category,
		})
		total := report.ByCategory[category]
		total.Count++
		total.Amount = total.Amount.Add(d.Profit)
		report.ByCategory[category] = total
	}
	return report, nil
}

// ClassifyComment applies the ordered classification rules to one balance
// operation.
func ClassifyComment(comment string, profit decimal.Decimal) string {
	c := strings.ToLower(comment)
	switch {
	case strings.Contains(c, "withdrawal") || strings.Contains(c, "profit"):
		return OpWithdrawal
	case strings.Contains(c, "deposit"):
		return OpDeposit
	case strings.Contains(c, "transfer"):
		return OpTransfer
	case strings.Contains(c, "interest") || strings.Contains(c, "separation"):
		return OpInterest
	case profit.IsPositive():
		return OpCredit
	case profit.IsNegative():
		return OpDebit
	default:
		return OpOther
	}
}

// DailyPnL buckets trading deals by UTC calendar date over the trailing
// window, ascending by date.
func (e *Engine) DailyPnL(ctx context.Context, accountID *int64, days int) (DailyPnLReport, error) {
	if days <= 0 {
		days = 30
	}
	start := time.Now().UTC().AddDate(0, 0, -days)
	deals, skipped, err := e.load(ctx, repository.DealFilter{AccountID: accountID, Start: &start})
	if err != nil {
		return DailyPnLReport{}, err
	}

	byDate := make(map[string]*DailyPnL)
	for _, d := range deals {
		if !d.IsTrading() {
			continue
		}
		date := d.Time.UTC().Format("2006-01-02")
		row, ok := byDate[date]
		if !ok {
			row = &DailyPnL{Date: date}
			byDate[date] = row
		}
		row.Deals++
		row.Profit = row.Profit.Add(d.Profit)
		row.Volume = row.Volume.Add(d.Volume)
		row.Commission = row.Commission.Add(d.Commission)
		row.Swap = row.Swap.Add(d.Swap)
	}

	out := make([]DailyPnL, 0, len(byDate))
	for _, row := range byDate {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return DailyPnLReport{Days: out, SkippedRecords: skipped}, nil
}

// load fetches matching deals and drops records the terminal should never
// have produced, counting them for observability.
func (e *Engine) load(ctx context.Context, filter repository.DealFilter) ([]models.Deal, int, error) {
	deals, err := e.Repo.ListDeals(ctx, filter, 0)
	if err != nil {
		return nil, 0, err
	}
	valid := deals[:0]
	skipped := 0
	for _, d := range deals {
		if d.Ticket == 0 || d.Time.IsZero() || d.Volume.IsNegative() ||
			d.Type < models.DealTypeBuy || d.Type > models.DealTypeBalanceOp {
			skipped++
			continue
		}
		valid = append(valid, d)
	}
	if skipped > 0 && e.Logger != nil {
		e.Logger.Warn("skipped malformed deal records", zap.Int("count", skipped))
	}
	return valid, skipped, nil
}

func managerName(names map[int64]string, magic int64) string {
	if name, ok := names[magic]; ok && name != "" {
		return name
	}
	return "Manager " + strconv.FormatInt(magic, 10)
}

func winRate(wins, losses int) decimal.Decimal {
	decided := wins + losses
	if decided == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(wins * 100)).
		Div(decimal.NewFromInt(int64(decided))).
		Round(2)
}
