package app

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0xcro3dile/ledgerrag-go/internal/adapters/loader"
	"github.com/0xcro3dile/ledgerrag-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
	"github.com/0xcro3dile/ledgerrag-go/internal/domain/ports"
	"github.com/0xcro3dile/ledgerrag-go/internal/domain/usecases"
)

const ledgerCSV = "Month,Sales,Expenses,Customers,Inventory Cost,Marketing Spend\n" +
	"Jan 2023,10000,6000,120,2000,500\n" +
	"Feb 2023,12000,7000,150,2500,800\n"

// hashEmbedder maps words into a small bag-of-words vector.
type hashEmbedder struct {
	batches atomic.Int32
	fail    atomic.Bool
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.fail.Load() {
		return nil, errors.New("embedding backend down")
	}
	v := make([]float32, 32)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%32]++
	}
	return v, nil
}

func (e *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type fixedLLM struct {
	answer string
}

func (l *fixedLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return l.answer, nil
}

func (l *fixedLLM) GenerateStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	ch := make(chan ports.StreamToken, 1)
	ch <- ports.StreamToken{Content: l.answer, Done: true}
	close(ch)
	return ch, nil
}

// fakeWatcher lets tests push file events by hand.
type fakeWatcher struct {
	events chan ports.FileEvent
	dir    string
	err    error
}

func (w *fakeWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.dir = dir
	return w.events, nil
}

func (w *fakeWatcher) Stop() error { return nil }

func writeLedger(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "ledger.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write ledger: %v", err)
	}
	return path
}

func newTestAssistant(t *testing.T, path string, opts Options) (*Assistant, *hashEmbedder) {
	t.Helper()
	emb := &hashEmbedder{}
	a := New(path, Deps{
		Loader:      loader.NewCSVLedgerLoader(),
		Embedder:    emb,
		LLM:         &fixedLLM{answer: "Feb 2023 earned more."},
		VectorStore: vectordb.NewInMemoryStore(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, opts)
	return a, emb
}

func TestAssistant_StartAndAsk(t *testing.T) {
	path := writeLedger(t, t.TempDir(), ledgerCSV)
	a, _ := newTestAssistant(t, path, Options{})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	h := a.Health(context.Background())
	if !h.Ready || h.Records != 2 || h.Documents != 2 {
		t.Errorf("unexpected health %+v", h)
	}
	if h.LastBuilt.IsZero() {
		t.Error("last build time should be set")
	}

	session, res := a.Ask(context.Background(), "", "which month had higher profit")
	if session == "" {
		t.Fatal("a session id should be issued")
	}
	if res.Status != entities.StatusOK || res.Answer != "Feb 2023 earned more." {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Sources) != 2 {
		t.Errorf("expected both months as sources, got %d", len(res.Sources))
	}

	history, ok := a.History(session)
	if !ok || len(history) != 1 {
		t.Errorf("session should remember the turn, got %v", history)
	}
}

func TestAssistant_MissingLedgerServesEmpty(t *testing.T) {
	a, _ := newTestAssistant(t, filepath.Join(t.TempDir(), "absent.csv"), Options{})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("missing ledger should not be fatal: %v", err)
	}
	if m := a.Metrics(""); m.RecordCount != 0 || m.TotalSales != 0 {
		t.Errorf("expected empty metrics, got %+v", m)
	}

	_, res := a.Ask(context.Background(), "", "how are sales?")
	if res.Status != entities.StatusOK || len(res.Sources) != 0 {
		t.Errorf("empty index should still answer without sources, got %+v", res)
	}
}

func TestAssistant_StartFailsWhenIndexCannotBuild(t *testing.T) {
	path := writeLedger(t, t.TempDir(), ledgerCSV)
	a, emb := newTestAssistant(t, path, Options{})
	emb.fail.Store(true)

	err := a.Start(context.Background())
	var idxErr *entities.RetrievalIndexError
	if !errors.As(err, &idxErr) {
		t.Fatalf("expected RetrievalIndexError, got %v", err)
	}
}

func TestAssistant_FailedRefreshKeepsOldIndex(t *testing.T) {
	dir := t.TempDir()
	path := writeLedger(t, dir, ledgerCSV)
	a, emb := newTestAssistant(t, path, Options{})
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	writeLedger(t, dir, ledgerCSV+"Mar 2023,9000,8000,90,1000,300\n")
	emb.fail.Store(true)
	if err := a.Refresh(context.Background()); err == nil {
		t.Fatal("refresh should report the build failure")
	}

	h := a.Health(context.Background())
	if h.Documents != 2 {
		t.Errorf("old index should keep serving, got %d documents", h.Documents)
	}
	if h.Records != h.Documents {
		t.Errorf("ledger and index out of step: %d records, %d documents", h.Records, h.Documents)
	}
	if m := a.Metrics(""); m.RecordCount != 2 || m.TotalSales != 22000 {
		t.Errorf("metrics should still describe the indexed ledger, got %+v", m)
	}
	if got := len(a.Trends().Months); got != 2 {
		t.Errorf("trends should still describe the indexed ledger, got %d months", got)
	}

	emb.fail.Store(false)
	if err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh after recovery failed: %v", err)
	}
	if m := a.Metrics(""); m.RecordCount != 3 {
		t.Errorf("new ledger should be live after a successful rebuild, got %d records", m.RecordCount)
	}
}

// flakyStore fails Replace while fail is set.
type flakyStore struct {
	*vectordb.InMemoryStore
	fail atomic.Bool
}

func (s *flakyStore) Replace(ctx context.Context, docs []entities.IndexedDocument) error {
	if s.fail.Load() {
		return errors.New("disk full")
	}
	return s.InMemoryStore.Replace(ctx, docs)
}

func TestAssistant_FailedRefreshOfUnreadableLedgerKeepsOldData(t *testing.T) {
	dir := t.TempDir()
	path := writeLedger(t, dir, ledgerCSV)
	store := &flakyStore{InMemoryStore: vectordb.NewInMemoryStore()}
	a := New(path, Deps{
		Loader:      loader.NewCSVLedgerLoader(),
		Embedder:    &hashEmbedder{},
		LLM:         &fixedLLM{answer: "ok"},
		VectorStore: store,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Options{})
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	writeLedger(t, dir, "not,a,ledger\n")
	store.fail.Store(true)
	if err := a.Refresh(context.Background()); err == nil {
		t.Fatal("refresh should report the store failure")
	}
	if m := a.Metrics(""); m.RecordCount != 2 {
		t.Errorf("empty ledger should not be installed before its index, got %d records", m.RecordCount)
	}

	store.fail.Store(false)
	if err := a.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if h := a.Health(context.Background()); h.Records != 0 || h.Documents != 0 {
		t.Errorf("unreadable ledger should be served empty once indexed, got %+v", h)
	}
}

func TestAssistant_AnonymousAsksDoNotGrowSessions(t *testing.T) {
	path := writeLedger(t, t.TempDir(), ledgerCSV)
	a, _ := newTestAssistant(t, path, Options{MaxSessions: 2})
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		a.Ask(context.Background(), "", "profit?")
	}
	if h := a.Health(context.Background()); h.Sessions != 2 {
		t.Errorf("expected sessions capped at 2, got %d", h.Sessions)
	}
}

func TestAssistant_RefreshClearsMemory(t *testing.T) {
	path := writeLedger(t, t.TempDir(), ledgerCSV)
	a, _ := newTestAssistant(t, path, Options{})
	a.Start(context.Background())

	session, _ := a.Ask(context.Background(), "", "profit?")
	if err := a.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	history, _ := a.History(session)
	if len(history) != 0 {
		t.Error("conversation memory should be cleared after a refresh")
	}
}

func TestAssistant_AnalyzeAndStream(t *testing.T) {
	path := writeLedger(t, t.TempDir(), ledgerCSV)
	a, _ := newTestAssistant(t, path, Options{})
	a.Start(context.Background())

	session, res, err := a.Analyze(context.Background(), "", usecases.FinancialAnalysis, "")
	if err != nil || res.Status != entities.StatusOK {
		t.Fatalf("analyze failed: %+v, %v", res, err)
	}

	var streamed strings.Builder
	sameSession, res := a.AskStream(context.Background(), session, "and costs?", func(s string) {
		streamed.WriteString(s)
	})
	if sameSession != session || streamed.String() != res.Answer {
		t.Errorf("stream mismatch: %q vs %q", streamed.String(), res.Answer)
	}

	history, _ := a.History(session)
	if len(history) != 2 {
		t.Errorf("expected 2 turns, got %d", len(history))
	}

	a.EndSession(session)
	if _, ok := a.History(session); ok {
		t.Error("ended session should be gone")
	}
}

func TestAssistant_WatchDebouncesRefresh(t *testing.T) {
	dir := t.TempDir()
	path := writeLedger(t, dir, ledgerCSV)
	a, emb := newTestAssistant(t, path, Options{Debounce: 30 * time.Millisecond})
	a.Start(context.Background())
	before := emb.batches.Load()

	w := &fakeWatcher{events: make(chan ports.FileEvent, 10)}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Watch(ctx, w)
	}()

	writeLedger(t, dir, ledgerCSV+"Mar 2023,9000,8000,90,1000,300\n")
	w.events <- ports.FileEvent{Path: filepath.Join(dir, "other.csv"), Operation: ports.FileModified}
	w.events <- ports.FileEvent{Path: path, Operation: ports.FileModified}
	w.events <- ports.FileEvent{Path: path, Operation: ports.FileModified}

	deadline := time.Now().Add(2 * time.Second)
	for a.Health(context.Background()).Records != 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	wg.Wait()

	if got := a.Health(context.Background()).Records; got != 3 {
		t.Fatalf("ledger change should trigger a refresh, have %d records", got)
	}
	if refreshes := emb.batches.Load() - before; refreshes != 1 {
		t.Errorf("burst of events should coalesce into 1 refresh, got %d", refreshes)
	}
	if w.dir != dir {
		t.Errorf("should watch the ledger directory, watched %s", w.dir)
	}
}

func TestAssistant_WatchSetupError(t *testing.T) {
	a, _ := newTestAssistant(t, filepath.Join(t.TempDir(), "ledger.csv"), Options{})
	if err := a.Watch(context.Background(), &fakeWatcher{err: errors.New("no inotify")}); err == nil {
		t.Error("watch setup failure should be returned")
	}
}
