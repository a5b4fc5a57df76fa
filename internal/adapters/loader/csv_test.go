package loader

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
)

func writeLedger(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write ledger: %v", err)
	}
	return path
}

func TestCSVLedgerLoader_Load(t *testing.T) {
	path := writeLedger(t, "Month,Sales,Expenses,Customers,Inventory Cost,Marketing Spend\n"+
		"Jan 2023,10000,6000,120,2000,500\n"+
		"Feb 2023,12000,7000,150,2500,800\n")

	records, err := NewCSVLedgerLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	jan := records[0]
	if jan.Month != "Jan 2023" || jan.Customers != 120 {
		t.Errorf("unexpected first record %+v", jan)
	}
	if jan.Profit != 4000 || math.Abs(jan.ProfitMargin-40) > 1e-9 {
		t.Errorf("derived fields wrong: profit=%v margin=%v", jan.Profit, jan.ProfitMargin)
	}
	if records[1].Month != "Feb 2023" {
		t.Error("file order should be preserved")
	}
}

func TestCSVLedgerLoader_HeaderVariants(t *testing.T) {
	path := writeLedger(t, " month , Sales (INR), EXPENSES (INR),customers,inventory_cost, Marketing Spend (INR)\n"+
		"Mar 2023, \"1,500\", 500, 10.0, 100, 50\n")

	records, err := NewCSVLedgerLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Sales != 1500 || rec.Expenses != 500 || rec.Customers != 10 {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.InventoryCost != 100 || rec.MarketingSpend != 50 {
		t.Errorf("unexpected cost columns %+v", rec)
	}
}

func TestCSVLedgerLoader_ColumnOrderIndependent(t *testing.T) {
	path := writeLedger(t, "Customers,Marketing Spend,Month,Inventory Cost,Expenses,Sales\n"+
		"42,10,Apr 2023,20,300,900\n")

	records, err := NewCSVLedgerLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if records[0].Month != "Apr 2023" || records[0].Sales != 900 || records[0].Customers != 42 {
		t.Errorf("columns resolved incorrectly: %+v", records[0])
	}
}

func TestCSVLedgerLoader_HeaderOnly(t *testing.T) {
	path := writeLedger(t, "Month,Sales,Expenses,Customers,Inventory Cost,Marketing Spend\n")

	records, err := NewCSVLedgerLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("header-only ledger should load: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", records)
	}
}

func TestCSVLedgerLoader_ZeroSales(t *testing.T) {
	path := writeLedger(t, "Month,Sales,Expenses,Customers,Inventory Cost,Marketing Spend\n"+
		"May 2023,0,100,0,0,0\n")

	records, err := NewCSVLedgerLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !math.IsNaN(records[0].ProfitMargin) {
		t.Errorf("margin should be undefined, got %v", records[0].ProfitMargin)
	}
}

func TestCSVLedgerLoader_Failures(t *testing.T) {
	header := "Month,Sales,Expenses,Customers,Inventory Cost,Marketing Spend\n"
	tests := []struct {
		name    string
		content string
	}{
		{"missing column", "Month,Sales,Expenses,Customers,Inventory Cost\nJan 2023,1,1,1,1\n"},
		{"bad number", header + "Jan 2023,abc,1,1,1,1\n"},
		{"negative amount", header + "Jan 2023,-5,1,1,1,1\n"},
		{"fractional customers", header + "Jan 2023,1,1,1.5,1,1\n"},
		{"empty month", header + ",1,1,1,1,1\n"},
		{"duplicate month", header + "Jan 2023,1,1,1,1,1\nJan 2023,2,2,2,2,2\n"},
		{"ragged row", header + "Jan 2023,1,1\n"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeLedger(t, tt.content)
			records, err := NewCSVLedgerLoader().Load(context.Background(), path)

			var loadErr *entities.DataLoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("expected DataLoadError, got %v", err)
			}
			if loadErr.Path != path {
				t.Errorf("error should name the path, got %s", loadErr.Path)
			}
			if records == nil || len(records) != 0 {
				t.Errorf("failed load should return an empty ledger, got %v", records)
			}
		})
	}
}

func TestCSVLedgerLoader_MissingFile(t *testing.T) {
	records, err := NewCSVLedgerLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))

	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist cause, got %v", err)
	}
	if len(records) != 0 {
		t.Error("missing file should give an empty ledger")
	}
}

func TestCSVLedgerLoader_Semicolon(t *testing.T) {
	path := writeLedger(t, "Month;Sales;Expenses;Customers;Inventory Cost;Marketing Spend\n"+
		"Jun 2023;800;300;12;50;25\n")

	records, err := NewDelimitedLedgerLoader(';').Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if records[0].Profit != 500 {
		t.Errorf("unexpected profit %v", records[0].Profit)
	}
}

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"  Sales (INR) ":    "sales",
		"Inventory_Cost":    "inventory cost",
		"MARKETING   SPEND": "marketing spend",
		"\ufeffMonth":       "month",
		"(weird)":           "(weird)",
	}
	for in, want := range cases {
		if got := normalizeHeader(in); got != want {
			t.Errorf("normalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}
