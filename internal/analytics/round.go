package analytics

// Rounded variants for the API boundary: accumulation stays full
// precision inside the engine, money and volume figures leave at 2
// decimals.

func (s Summary) Rounded() Summary {
	s.TotalVolume = s.TotalVolume.Round(2)
	s.TotalProfit = s.TotalProfit.Round(2)
	s.TotalCommission = s.TotalCommission.Round(2)
	s.TotalSwap = s.TotalSwap.Round(2)
	return s
}

func (r RebateReport) Rounded() RebateReport {
	r.TotalVolume = r.TotalVolume.Round(2)
	r.TotalRebates = r.TotalRebates.Round(2)
	byAccount := make([]AccountRebate, len(r.ByAccount))
	for i, a := range r.ByAccount {
		a.Volume = a.Volume.Round(2)
		a.Commission = a.Commission.Round(2)
		a.Rebates = a.Rebates.Round(2)
		byAccount[i] = a
	}
	r.ByAccount = byAccount
	topSymbols := make([]SymbolRebate, len(r.TopSymbols))
	for i, s := range r.TopSymbols {
		s.Volume = s.Volume.Round(2)
		s.Rebates = s.Rebates.Round(2)
		topSymbols[i] = s
	}
	r.TopSymbols = topSymbols
	return r
}

func (p ManagerPerformance) Rounded() ManagerPerformance {
	p.Volume = p.Volume.Round(2)
	p.Profit = p.Profit.Round(2)
	p.Commission = p.Commission.Round(2)
	return p
}

func (r ManagerPerformanceReport) Rounded() ManagerPerformanceReport {
	managers := make([]ManagerPerformance, len(r.Managers))
	for i, p := range r.Managers {
		managers[i] = p.Rounded()
	}
	r.Managers = managers
	return r
}

func (r BalanceOpsReport) Rounded() BalanceOpsReport {
	ops := make([]ClassifiedOperation, len(r.Operations))
	for i, op := range r.Operations {
		op.Profit = op.Profit.Round(2)
		ops[i] = op
	}
	r.Operations = ops
	byCategory := make(map[string]CategoryTotal, len(r.ByCategory))
	for k, v := range r.ByCategory {
		v.Amount = v.Amount.Round(2)
		byCategory[k] = v
	}
	r.ByCategory = byCategory
	return r
}

func (d DailyPnL) Rounded() DailyPnL {
	d.Profit = d.Profit.Round(2)
	d.Volume = d.Volume.Round(2)
	d.Commission = d.Commission.Round(2)
	d.Swap = d.Swap.Round(2)
	return d
}

func (r DailyPnLReport) Rounded() DailyPnLReport {
	days := make([]DailyPnL, len(r.Days))
	for i, d := range r.Days {
		days[i] = d.Rounded()
	}
	r.Days = days
	return r
}
