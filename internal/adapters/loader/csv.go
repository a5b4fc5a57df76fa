// Package loader provides ledger loading adapters.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
)

// Column identifiers, in the order records are built.
const (
	colMonth = iota
	colSales
	colExpenses
	colCustomers
	colInventory
	colMarketing
	numColumns
)

var columnNames = [numColumns]string{
	colMonth:     "month",
	colSales:     "sales",
	colExpenses:  "expenses",
	colCustomers: "customers",
	colInventory: "inventory cost",
	colMarketing: "marketing spend",
}

// CSVLedgerLoader implements ports.LedgerLoader for delimited files with a
// header row.
type CSVLedgerLoader struct {
	comma rune
}

// NewCSVLedgerLoader creates a comma-separated ledger loader.
func NewCSVLedgerLoader() *CSVLedgerLoader {
	return &CSVLedgerLoader{comma: ','}
}

// NewDelimitedLedgerLoader creates a loader for another single-rune delimiter.
func NewDelimitedLedgerLoader(comma rune) *CSVLedgerLoader {
	return &CSVLedgerLoader{comma: comma}
}

// Load reads the ledger at path. Any failure yields an empty record set and
// a *entities.DataLoadError.
func (l *CSVLedgerLoader) Load(ctx context.Context, path string) ([]entities.LedgerRecord, error) {
	records, err := l.load(ctx, path)
	if err != nil {
		return []entities.LedgerRecord{}, &entities.DataLoadError{Path: path, Err: err}
	}
	return records, nil
}

func (l *CSVLedgerLoader) load(ctx context.Context, path string) ([]entities.LedgerRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.Comma = l.comma
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	index, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	var records []entities.LedgerRecord
	seen := make(map[string]int)
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		rec, err := parseRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if prev, dup := seen[rec.Month]; dup {
			return nil, fmt.Errorf("line %d: month %q already defined on line %d", line, rec.Month, prev)
		}
		seen[rec.Month] = line
		records = append(records, rec)
	}

	if records == nil {
		records = []entities.LedgerRecord{}
	}
	return records, nil
}

// resolveColumns maps each required column to its position in header.
func resolveColumns(header []string) ([numColumns]int, error) {
	var index [numColumns]int
	for i := range index {
		index[i] = -1
	}
	for pos, h := range header {
		name := normalizeHeader(h)
		for col, want := range columnNames {
			if name == want && index[col] < 0 {
				index[col] = pos
			}
		}
	}

	var missing []string
	for col, pos := range index {
		if pos < 0 {
			missing = append(missing, columnNames[col])
		}
	}
	if len(missing) > 0 {
		return index, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

// normalizeHeader trims, lowercases and drops a trailing unit such as "(INR)".
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	if i := strings.LastIndex(h, "("); i > 0 && strings.HasSuffix(h, ")") {
		h = strings.TrimSpace(h[:i])
	}
	h = strings.ReplaceAll(h, "_", " ")
	return strings.Join(strings.Fields(h), " ")
}

func parseRow(row []string, index [numColumns]int) (entities.LedgerRecord, error) {
	month := strings.TrimSpace(row[index[colMonth]])
	if month == "" {
		return entities.LedgerRecord{}, errors.New("empty month")
	}

	var amounts [numColumns]float64
	for _, col := range []int{colSales, colExpenses, colInventory, colMarketing} {
		v, err := parseAmount(row[index[col]])
		if err != nil {
			return entities.LedgerRecord{}, fmt.Errorf("%s: %w", columnNames[col], err)
		}
		amounts[col] = v
	}

	customers, err := parseCount(row[index[colCustomers]])
	if err != nil {
		return entities.LedgerRecord{}, fmt.Errorf("customers: %w", err)
	}

	return entities.NewLedgerRecord(
		month,
		amounts[colSales],
		amounts[colExpenses],
		customers,
		amounts[colInventory],
		amounts[colMarketing],
	), nil
}

func parseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func parseCount(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("invalid count %q", s)
		}
		return n, nil
	}
	// Spreadsheet exports sometimes write counts as "120.0".
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || v != math.Trunc(v) {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	return int64(v), nil
}
