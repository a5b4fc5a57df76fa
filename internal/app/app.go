// Package app composes the ledger, retrieval index and conversation sessions
// into the assistant served over HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
	"github.com/0xcro3dile/ledgerrag-go/internal/domain/ports"
	"github.com/0xcro3dile/ledgerrag-go/internal/domain/usecases"
	"github.com/0xcro3dile/ledgerrag-go/internal/observability"
)

const defaultDebounce = 500 * time.Millisecond

// Options tunes an Assistant. Zero values select defaults.
type Options struct {
	Currency     string
	TopK         int
	AskTimeout   time.Duration
	HistoryLimit int
	Debounce     time.Duration
	SessionTTL   time.Duration
	MaxSessions  int
}

// Deps are the ports an Assistant is built from.
type Deps struct {
	Loader      ports.LedgerLoader
	Embedder    ports.EmbeddingService
	LLM         ports.LLMService
	VectorStore ports.VectorStore
	Logger      *slog.Logger
}

// Assistant answers questions about one ledger file.
type Assistant struct {
	ledger   *usecases.LedgerService
	index    *usecases.IndexUseCase
	sessions *usecases.SessionRegistry
	logger   *slog.Logger
	opts     Options

	refreshMu sync.Mutex
	lastBuilt atomic.Int64 // UnixNano of the last successful build
}

// Health is a snapshot of the assistant state.
type Health struct {
	Ready     bool      `json:"ready"`
	Records   int       `json:"records"`
	Documents int       `json:"documents"`
	Sessions  int       `json:"sessions"`
	LastBuilt time.Time `json:"last_built"`
}

// New wires an Assistant for the ledger at path.
func New(path string, deps Deps, opts Options) *Assistant {
	if opts.Currency == "" {
		opts.Currency = usecases.DefaultCurrency
	}
	if opts.TopK <= 0 {
		opts.TopK = usecases.DefaultTopK
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Assistant{
		ledger: usecases.NewLedgerService(deps.Loader, path),
		index:  usecases.NewIndexUseCase(deps.Embedder, deps.VectorStore),
		logger: logger,
		opts:   opts,
	}
	a.sessions = usecases.NewSessionRegistry(func() *usecases.Orchestrator {
		return usecases.NewOrchestrator(a.index, deps.LLM, logger, usecases.OrchestratorOptions{
			TopK:         opts.TopK,
			Currency:     opts.Currency,
			Timeout:      opts.AskTimeout,
			HistoryLimit: opts.HistoryLimit,
		})
	}, usecases.SessionOptions{IdleTTL: opts.SessionTTL, MaxSessions: opts.MaxSessions})
	return a
}

// Start loads the ledger and builds the first index. A ledger that cannot be
// loaded is logged and served as empty; an index that cannot be built is
// returned as an error.
func (a *Assistant) Start(ctx context.Context) error {
	if err := a.Refresh(ctx); err != nil {
		return fmt.Errorf("initial index build: %w", err)
	}
	return nil
}

// Refresh reloads the ledger, rebuilds the index and clears conversation
// memory. The new ledger is installed only once its index is built; if the
// rebuild fails the previous ledger and index keep serving together.
func (a *Assistant) Refresh(ctx context.Context) error {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	ctx, span := observability.StartSpan(ctx, "assistant.Refresh")
	defer span.End()

	start := time.Now()
	records, err := a.ledger.Load(ctx)
	if err != nil {
		var loadErr *entities.DataLoadError
		if !errors.As(err, &loadErr) {
			observability.RecordError(span, err)
			return err
		}
		a.logger.Error("ledger load failed, continuing with empty ledger", "path", loadErr.Path, "error", loadErr.Err)
	}

	docs := usecases.Synthesize(records, a.opts.Currency)
	if err := a.index.Build(ctx, docs); err != nil {
		observability.RecordError(span, err)
		a.logger.Error("index build failed", "documents", len(docs), "error", err)
		return err
	}

	a.ledger.Set(records)
	a.sessions.ResetAll()
	a.lastBuilt.Store(time.Now().UnixNano())
	a.logger.Info("ledger indexed",
		"path", a.ledger.Path(),
		"records", len(records),
		"documents", len(docs),
		"duration", time.Since(start),
	)
	return nil
}

// Watch refreshes the assistant whenever the ledger file changes, coalescing
// bursts of events within the debounce window. It blocks until ctx is done.
func (a *Assistant) Watch(ctx context.Context, watcher ports.FileWatcher) error {
	path := a.ledger.Path()
	events, err := watcher.Watch(ctx, filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}
	a.logger.Info("watching ledger", "path", path, "debounce", a.opts.Debounce)

	target := filepath.Base(path)
	timer := time.NewTimer(a.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Path) != target {
				continue
			}
			a.logger.Debug("ledger changed", "path", ev.Path, "op", ev.Operation)
			timer.Reset(a.opts.Debounce)
		case <-timer.C:
			if err := a.Refresh(ctx); err != nil {
				a.logger.Error("refresh after ledger change failed", "error", err)
			}
		}
	}
}

// Metrics aggregates the ledger for period; empty means all months.
func (a *Assistant) Metrics(period string) entities.MetricsSummary {
	return a.ledger.Metrics(period)
}

// Trends returns the per-month series.
func (a *Assistant) Trends() entities.TrendSeries {
	return a.ledger.Trends()
}

// Ask answers question within session, creating the session when needed.
func (a *Assistant) Ask(ctx context.Context, session, question string) (string, entities.QAResult) {
	ctx, span := observability.StartSpan(ctx, "assistant.Ask")
	defer span.End()

	id, o := a.sessions.Get(session)
	return id, o.Ask(ctx, question)
}

// AskStream is Ask with the answer streamed to onToken.
func (a *Assistant) AskStream(ctx context.Context, session, question string, onToken func(string)) (string, entities.QAResult) {
	ctx, span := observability.StartSpan(ctx, "assistant.AskStream")
	defer span.End()

	id, o := a.sessions.Get(session)
	return id, o.AskStream(ctx, question, onToken)
}

// Analyze runs a fixed analysis capability within session.
func (a *Assistant) Analyze(ctx context.Context, session string, c usecases.AnalysisCapability, focus string) (string, entities.QAResult, error) {
	id, o := a.sessions.Get(session)
	res, err := usecases.Analyze(ctx, o, c, focus)
	return id, res, err
}

// History returns the conversation so far for session. Unknown sessions
// report false.
func (a *Assistant) History(session string) ([]entities.ConversationTurn, bool) {
	o, ok := a.sessions.Lookup(session)
	if !ok {
		return nil, false
	}
	return o.History(), true
}

// EndSession forgets a session and its memory.
func (a *Assistant) EndSession(session string) {
	a.sessions.Delete(session)
}

// Health reports readiness and corpus size.
func (a *Assistant) Health(ctx context.Context) Health {
	docs, err := a.index.Size(ctx)
	if err != nil {
		a.logger.Warn("vector store count failed", "error", err)
	}

	var built time.Time
	if ns := a.lastBuilt.Load(); ns != 0 {
		built = time.Unix(0, ns).UTC()
	}

	return Health{
		Ready:     a.index.Ready(),
		Records:   len(a.ledger.Records()),
		Documents: docs,
		Sessions:  a.sessions.Len(),
		LastBuilt: built,
	}
}
