// Package entities contains core business entities.
// These are pure domain objects with no external dependencies.
package entities

import "math"

// LedgerRecord is one calendar month of the financial ledger.
// Profit and ProfitMargin are derived from Sales and Expenses and are never
// set independently; use NewLedgerRecord to build one.
type LedgerRecord struct {
	Month          string
	Sales          float64
	Expenses       float64
	Customers      int64
	InventoryCost  float64
	MarketingSpend float64
	Profit         float64
	ProfitMargin   float64 // NaN when Sales == 0
}

// NewLedgerRecord builds a record and derives profit and profit margin.
func NewLedgerRecord(month string, sales, expenses float64, customers int64, inventoryCost, marketingSpend float64) LedgerRecord {
	profit := sales - expenses
	return LedgerRecord{
		Month:          month,
		Sales:          sales,
		Expenses:       expenses,
		Customers:      customers,
		InventoryCost:  inventoryCost,
		MarketingSpend: marketingSpend,
		Profit:         profit,
		ProfitMargin:   profitMargin(profit, sales),
	}
}

func profitMargin(profit, sales float64) float64 {
	if sales == 0 {
		return math.NaN()
	}
	return profit / sales * 100
}

// MetricsSummary aggregates a set of ledger records.
// Means are NaN when no record contributes to them.
type MetricsSummary struct {
	TotalSales          float64
	TotalExpenses       float64
	TotalProfit         float64
	AverageProfitMargin float64
	AverageCustomers    float64
	TotalInventoryCost  float64
	TotalMarketingSpend float64
	RecordCount         int
}

// TrendSeries holds per-month columns in ledger order, for charting.
type TrendSeries struct {
	Months        []string
	Sales         []float64
	Expenses      []float64
	Profits       []float64
	Customers     []int64
	ProfitMargins []float64
}

// DocumentMetadata is the minimal structured data carried with a document.
type DocumentMetadata struct {
	Month  string  `json:"month"`
	Sales  float64 `json:"sales"`
	Profit float64 `json:"profit"`
}

// RetrievalDocument is the text form of one ledger record, used as retrieval corpus.
type RetrievalDocument struct {
	Ordinal  int // Position in the corpus, used for tie-breaking
	Text     string
	Metadata DocumentMetadata
}

// IndexedDocument is a document with its embedding attached.
type IndexedDocument struct {
	Document  RetrievalDocument
	Embedding []float32 // Populated by the embedding adapter
}

// SearchResult is a retrieved document with its similarity score.
type SearchResult struct {
	Document RetrievalDocument
	Score    float64
}

// ConversationTurn is one answered question.
type ConversationTurn struct {
	Question string
	Answer   string
}

// AnswerStatus tells whether an answer came from the model or the fallback path.
type AnswerStatus string

const (
	StatusOK       AnswerStatus = "ok"
	StatusDegraded AnswerStatus = "degraded"
)

// QAResult is the answer to a question with its supporting documents.
type QAResult struct {
	Answer  string
	Sources []RetrievalDocument
	Status  AnswerStatus
}
