package usecases

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
)

// DefaultCurrency is the currency symbol used in documents and prompts.
const DefaultCurrency = "₹"

// Synthesize turns each ledger record into a retrieval document, in order.
// The output is deterministic for a given ledger and currency.
func Synthesize(records []entities.LedgerRecord, currency string) []entities.RetrievalDocument {
	if currency == "" {
		currency = DefaultCurrency
	}
	docs := make([]entities.RetrievalDocument, len(records))
	for i, r := range records {
		docs[i] = entities.RetrievalDocument{
			Ordinal: i,
			Text:    FormatRecord(r, currency),
			Metadata: entities.DocumentMetadata{
				Month:  r.Month,
				Sales:  r.Sales,
				Profit: r.Profit,
			},
		}
	}
	return docs
}

// FormatRecord renders one record as the narrative used for embedding.
// Field order and number formats are fixed.
func FormatRecord(r entities.LedgerRecord, currency string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Financial Report for %s\n", r.Month)
	fmt.Fprintf(&sb, "Sales: %s\n", FormatCurrency(currency, r.Sales))
	fmt.Fprintf(&sb, "Expenses: %s\n", FormatCurrency(currency, r.Expenses))
	fmt.Fprintf(&sb, "Profit: %s\n", FormatCurrency(currency, r.Profit))
	fmt.Fprintf(&sb, "Profit Margin: %s%%\n", formatPercent(r.ProfitMargin))
	fmt.Fprintf(&sb, "Customers: %d\n", r.Customers)
	fmt.Fprintf(&sb, "Inventory Cost: %s\n", FormatCurrency(currency, r.InventoryCost))
	fmt.Fprintf(&sb, "Marketing Spend: %s", FormatCurrency(currency, r.MarketingSpend))
	return sb.String()
}

// FormatCurrency prefixes the symbol to a comma-grouped, two-decimal amount.
// Exact halves round to even, so 0.125 renders as 0.12.
func FormatCurrency(currency string, v float64) string {
	if math.IsNaN(v) {
		return currency + "nan"
	}
	whole, frac, _ := strings.Cut(strconv.FormatFloat(math.Abs(v), 'f', 2, 64), ".")
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		whole = humanize.Comma(n)
	}
	sign := ""
	if math.Signbit(v) {
		sign = "-"
	}
	return currency + sign + whole + "." + frac
}

func formatPercent(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return fmt.Sprintf("%.1f", v)
}
