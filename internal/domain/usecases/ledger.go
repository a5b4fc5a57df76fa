package usecases

import (
	"context"
	"sync/atomic"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
	"github.com/0xcro3dile/ledgerrag-go/internal/domain/ports"
)

// LedgerService owns the loaded ledger snapshot and its read accessors.
// A snapshot is never mutated; Reload swaps in a new one.
type LedgerService struct {
	loader ports.LedgerLoader
	path   string
	data   atomic.Pointer[[]entities.LedgerRecord]
}

// NewLedgerService creates a service with an empty ledger.
func NewLedgerService(loader ports.LedgerLoader, path string) *LedgerService {
	s := &LedgerService{loader: loader, path: path}
	s.Set(nil)
	return s
}

// Load reads the ledger file without touching the current snapshot.
// On failure it returns an empty, non-nil ledger alongside the error.
func (s *LedgerService) Load(ctx context.Context) ([]entities.LedgerRecord, error) {
	records, err := s.loader.Load(ctx, s.path)
	if records == nil {
		records = []entities.LedgerRecord{}
	}
	return records, err
}

// Reload reads the ledger file and replaces the snapshot.
// A load failure installs the empty ledger the loader returns and reports
// the error so callers can surface it.
func (s *LedgerService) Reload(ctx context.Context) error {
	records, err := s.Load(ctx)
	s.Set(records)
	return err
}

// Set replaces the snapshot with a copy of records.
func (s *LedgerService) Set(records []entities.LedgerRecord) {
	snapshot := make([]entities.LedgerRecord, len(records))
	copy(snapshot, records)
	s.data.Store(&snapshot)
}

// Records returns a copy of the current ledger.
func (s *LedgerService) Records() []entities.LedgerRecord {
	snapshot := *s.data.Load()
	out := make([]entities.LedgerRecord, len(snapshot))
	copy(out, snapshot)
	return out
}

// Path returns the ledger file path.
func (s *LedgerService) Path() string { return s.path }

// Metrics summarises the ledger, optionally filtered by period.
func (s *LedgerService) Metrics(period string) entities.MetricsSummary {
	return ComputeMetrics(*s.data.Load(), period)
}

// Trends returns the per-month series.
func (s *LedgerService) Trends() entities.TrendSeries {
	return ComputeTrends(*s.data.Load())
}
