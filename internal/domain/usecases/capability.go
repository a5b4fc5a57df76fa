package usecases

import (
	"context"
	"fmt"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
)

// AnalysisCapability names a focused analysis the assistant can run.
type AnalysisCapability string

const (
	FinancialAnalysis     AnalysisCapability = "financial_analysis"
	Recommendation        AnalysisCapability = "business_recommendation"
	InventoryOptimization AnalysisCapability = "inventory_optimization"
	SalesGrowth           AnalysisCapability = "sales_growth"
)

// Capabilities lists every supported capability.
func Capabilities() []AnalysisCapability {
	return []AnalysisCapability{FinancialAnalysis, Recommendation, InventoryOptimization, SalesGrowth}
}

// ParseCapability maps a name to a capability.
func ParseCapability(name string) (AnalysisCapability, error) {
	for _, c := range Capabilities() {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown analysis capability %q", name)
}

// CapabilityQuestion builds the question sent for capability c. An optional
// focus from the user is appended.
func CapabilityQuestion(c AnalysisCapability, focus string) (string, error) {
	var q string
	switch c {
	case FinancialAnalysis:
		q = "Analyze sales, expenses, profit and profit margin across the months and highlight notable changes."
	case Recommendation:
		q = "Based on the financial data, give concrete business recommendations to improve profit."
	case InventoryOptimization:
		q = "Compare inventory cost against sales for each month and suggest how to optimize inventory levels."
	case SalesGrowth:
		q = "Analyze sales and customer patterns, relate them to marketing spend, and suggest growth strategies."
	default:
		return "", fmt.Errorf("unknown analysis capability %q", c)
	}
	if focus != "" {
		q += " Focus: " + focus
	}
	return q, nil
}

// Analyze dispatches capability c through the orchestrator.
func Analyze(ctx context.Context, o *Orchestrator, c AnalysisCapability, focus string) (entities.QAResult, error) {
	q, err := CapabilityQuestion(c, focus)
	if err != nil {
		return entities.QAResult{}, err
	}
	return o.Ask(ctx, q), nil
}
