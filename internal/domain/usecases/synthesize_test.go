package usecases

import (
	"strings"
	"testing"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
)

func TestFormatRecord_ExactLayout(t *testing.T) {
	rec := entities.NewLedgerRecord("Jan 2023", 125000.5, 98000, 342, 45000, 12500)

	got := FormatRecord(rec, "₹")
	want := "Financial Report for Jan 2023\n" +
		"Sales: ₹125,000.50\n" +
		"Expenses: ₹98,000.00\n" +
		"Profit: ₹27,000.50\n" +
		"Profit Margin: 21.6%\n" +
		"Customers: 342\n" +
		"Inventory Cost: ₹45,000.00\n" +
		"Marketing Spend: ₹12,500.00"

	if got != want {
		t.Errorf("unexpected document text:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatRecord_LossAndZeroSales(t *testing.T) {
	rec := entities.NewLedgerRecord("Feb 2023", 0, 1500, 0, 0, 0)

	got := FormatRecord(rec, "$")
	if !strings.Contains(got, "Profit: $-1,500.00") {
		t.Errorf("negative profit not formatted: %s", got)
	}
	if !strings.Contains(got, "Profit Margin: nan%") {
		t.Errorf("undefined margin not formatted: %s", got)
	}
}

func TestSynthesize_OrderAndMetadata(t *testing.T) {
	docs := Synthesize(sampleLedger(), "")

	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].Ordinal != 0 || docs[1].Ordinal != 1 {
		t.Error("ordinals should follow ledger order")
	}
	want := entities.DocumentMetadata{Month: "Feb 2023", Sales: 12000, Profit: 5000}
	if docs[1].Metadata != want {
		t.Errorf("unexpected metadata %+v", docs[1].Metadata)
	}
	if !strings.HasPrefix(docs[0].Text, "Financial Report for Jan 2023") {
		t.Errorf("unexpected first document: %s", docs[0].Text)
	}
}

func TestSynthesize_Deterministic(t *testing.T) {
	a := Synthesize(yearLedger(), "₹")
	b := Synthesize(yearLedger(), "₹")

	for i := range a {
		if a[i] != b[i] {
			t.Errorf("document %d differs between runs", i)
		}
	}
}

func TestSynthesize_DefaultCurrency(t *testing.T) {
	docs := Synthesize(sampleLedger(), "")
	if !strings.Contains(docs[0].Text, "Sales: ₹10,000.00") {
		t.Errorf("expected rupee default, got %s", docs[0].Text)
	}
}

func TestFormatCurrency(t *testing.T) {
	cases := map[float64]string{
		0:          "₹0.00",
		999.999:    "₹1,000.00",
		1234567.89: "₹1,234,567.89",
		-1500:      "₹-1,500.00",
		0.125:      "₹0.12",
		0.375:      "₹0.38",
		2.675:      "₹2.67",
		1000000.5:  "₹1,000,000.50",
	}
	for in, want := range cases {
		if got := FormatCurrency("₹", in); got != want {
			t.Errorf("FormatCurrency(%v) = %s, want %s", in, got, want)
		}
	}
}
