// Package usecases contains application business rules.
// Usecases orchestrate entities and depend on port interfaces only.
package usecases

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
)

// ComputeMetrics aggregates records whose month label contains period.
// An empty period selects every record. Sums over an empty selection are
// zero and means are NaN; no defaults are substituted.
func ComputeMetrics(records []entities.LedgerRecord, period string) entities.MetricsSummary {
	var sales, expenses, profit, inventory, marketing decimal.Decimal
	var marginSum, customerSum float64
	var marginCount, count int

	for _, r := range records {
		if period != "" && !strings.Contains(r.Month, period) {
			continue
		}
		count++
		sales = sales.Add(decimal.NewFromFloat(r.Sales))
		expenses = expenses.Add(decimal.NewFromFloat(r.Expenses))
		profit = profit.Add(decimal.NewFromFloat(r.Profit))
		inventory = inventory.Add(decimal.NewFromFloat(r.InventoryCost))
		marketing = marketing.Add(decimal.NewFromFloat(r.MarketingSpend))
		customerSum += float64(r.Customers)

		// Undefined margins are skipped, matching a NaN-skipping mean.
		if !math.IsNaN(r.ProfitMargin) {
			marginSum += r.ProfitMargin
			marginCount++
		}
	}

	return entities.MetricsSummary{
		TotalSales:          sales.InexactFloat64(),
		TotalExpenses:       expenses.InexactFloat64(),
		TotalProfit:         profit.InexactFloat64(),
		AverageProfitMargin: mean(marginSum, marginCount),
		AverageCustomers:    mean(customerSum, count),
		TotalInventoryCost:  inventory.InexactFloat64(),
		TotalMarketingSpend: marketing.InexactFloat64(),
		RecordCount:         count,
	}
}

// ComputeTrends returns per-month columns in ledger order.
func ComputeTrends(records []entities.LedgerRecord) entities.TrendSeries {
	t := entities.TrendSeries{
		Months:        make([]string, 0, len(records)),
		Sales:         make([]float64, 0, len(records)),
		Expenses:      make([]float64, 0, len(records)),
		Profits:       make([]float64, 0, len(records)),
		Customers:     make([]int64, 0, len(records)),
		ProfitMargins: make([]float64, 0, len(records)),
	}
	for _, r := range records {
		t.Months = append(t.Months, r.Month)
		t.Sales = append(t.Sales, r.Sales)
		t.Expenses = append(t.Expenses, r.Expenses)
		t.Profits = append(t.Profits, r.Profit)
		t.Customers = append(t.Customers, r.Customers)
		t.ProfitMargins = append(t.ProfitMargins, r.ProfitMargin)
	}
	return t
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
