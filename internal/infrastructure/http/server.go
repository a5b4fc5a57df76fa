// Package http serves the assistant over a JSON API and a datastar SSE stream.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/0xcro3dile/ledgerrag-go/internal/app"
	"github.com/0xcro3dile/ledgerrag-go/internal/config"
	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
	"github.com/0xcro3dile/ledgerrag-go/internal/domain/usecases"
)

const maxBodyBytes = 64 << 10

// Assistant is what the server needs from the application layer.
type Assistant interface {
	Health(ctx context.Context) app.Health
	Metrics(period string) entities.MetricsSummary
	Trends() entities.TrendSeries
	Ask(ctx context.Context, session, question string) (string, entities.QAResult)
	AskStream(ctx context.Context, session, question string, onToken func(string)) (string, entities.QAResult)
	Analyze(ctx context.Context, session string, c usecases.AnalysisCapability, focus string) (string, entities.QAResult, error)
	History(session string) ([]entities.ConversationTurn, bool)
	EndSession(session string)
	Refresh(ctx context.Context) error
}

// Server is the HTTP server for the assistant API.
type Server struct {
	assistant Assistant
	logger    *slog.Logger
	cfg       config.ServerConfig
	limiter   *RateLimiter
}

// NewServer creates a new HTTP server.
func NewServer(assistant Assistant, logger *slog.Logger, cfg config.ServerConfig, security config.SecurityConfig) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		assistant: assistant,
		logger:    logger,
		cfg:       cfg,
		limiter:   NewRateLimiter(security),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/trends", s.handleTrends)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("GET /api/capabilities", s.handleCapabilities)
	mux.HandleFunc("POST /api/analyze/{capability}", s.handleAnalyze)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleEndSession)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /sse/ask", s.handleAskSSE)

	return Chain(
		Recovery(s.logger),
		RequestID(),
		Tracing(),
		Logger(s.logger),
		RateLimit(s.limiter, s.logger),
	)(mux)
}

// Start runs the HTTP server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout, // Covers a full model generation
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	shutdownTimeout := s.cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		done <- server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("server starting", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-done; err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// handleHealth reports 503 until the first index build has succeeded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.assistant.Health(r.Context())
	if !h.Ready {
		writeError(w, r, s.logger, unavailable("Retrieval index is not built yet", nil))
		return
	}
	writeSuccess(w, h)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	period := strings.TrimSpace(r.URL.Query().Get("period"))
	writeSuccess(w, toMetricsResponse(period, s.assistant.Metrics(period)))
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, toTrendsResponse(s.assistant.Trends()))
}

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
	Focus     string `json:"focus"`
}

func (s *Server) decodeAsk(w http.ResponseWriter, r *http.Request) (askRequest, error) {
	var req askRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, badRequest("Request body must be a JSON object", err)
	}
	return req, nil
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeAsk(w, r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	session, res := s.assistant.Ask(r.Context(), req.SessionID, req.Question)
	writeSuccess(w, toAnswerResponse(session, res))
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, usecases.Capabilities())
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	c, err := usecases.ParseCapability(r.PathValue("capability"))
	if err != nil {
		writeError(w, r, s.logger, notFound(err.Error()))
		return
	}
	req, err := s.decodeAsk(w, r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	session, res, err := s.assistant.Analyze(r.Context(), req.SessionID, c, req.Focus)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, toAnswerResponse(session, res))
}

type turnResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, ok := s.assistant.History(r.PathValue("id"))
	if !ok {
		writeError(w, r, s.logger, notFound("Unknown session"))
		return
	}
	turns := make([]turnResponse, len(history))
	for i, t := range history {
		turns[i] = turnResponse{Question: t.Question, Answer: t.Answer}
	}
	writeSuccess(w, turns)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	s.assistant.EndSession(r.PathValue("id"))
	writeSuccess(w, map[string]bool{"deleted": true})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.assistant.Refresh(r.Context()); err != nil {
		writeError(w, r, s.logger, unavailable("Index rebuild failed; the previous index is still serving", err))
		return
	}
	writeSuccess(w, s.assistant.Health(r.Context()))
}

// handleAskSSE streams the answer as datastar signal patches: the partial
// answer while generating, then the final result.
func (s *Server) handleAskSSE(w http.ResponseWriter, r *http.Request) {
	question := r.URL.Query().Get("q")
	session := r.URL.Query().Get("session")

	sse := datastar.NewSSE(w, r)
	patch := func(signals map[string]any) bool {
		b, err := json.Marshal(signals)
		if err != nil {
			s.logger.Error("marshal answer signals", "error", err)
			return false
		}
		if err := sse.PatchSignals(b); err != nil {
			s.logger.Warn("sse client gone", "error", err)
			return false
		}
		return true
	}

	if !patch(map[string]any{"streaming": true, "answer": "", "status": ""}) {
		return
	}

	var partial strings.Builder
	alive := true
	id, res := s.assistant.AskStream(r.Context(), session, question, func(tok string) {
		partial.WriteString(tok)
		if alive {
			alive = patch(map[string]any{"answer": partial.String()})
		}
	})
	if !alive {
		return
	}

	final := toAnswerResponse(id, res)
	patch(map[string]any{
		"streaming":  false,
		"session_id": final.SessionID,
		"answer":     final.Answer,
		"status":     final.Status,
		"sources":    final.Sources,
	})
}

type metricsResponse struct {
	Period              string   `json:"period,omitempty"`
	TotalSales          float64  `json:"total_sales"`
	TotalExpenses       float64  `json:"total_expenses"`
	TotalProfit         float64  `json:"total_profit"`
	AverageProfitMargin *float64 `json:"average_profit_margin"`
	AverageCustomers    *float64 `json:"average_customers"`
	TotalInventoryCost  float64  `json:"total_inventory_cost"`
	TotalMarketingSpend float64  `json:"total_marketing_spend"`
	RecordCount         int      `json:"record_count"`
}

type trendsResponse struct {
	Months        []string   `json:"months"`
	Sales         []float64  `json:"sales"`
	Expenses      []float64  `json:"expenses"`
	Profits       []float64  `json:"profits"`
	Customers     []int64    `json:"customers"`
	ProfitMargins []*float64 `json:"profit_margins"`
}

type sourceResponse struct {
	Text     string                    `json:"text"`
	Metadata entities.DocumentMetadata `json:"metadata"`
}

type answerResponse struct {
	SessionID string           `json:"session_id"`
	Answer    string           `json:"answer"`
	Sources   []sourceResponse `json:"sources"`
	Status    string           `json:"status"`
}

// nullable maps values JSON cannot carry (NaN, Inf) to null.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func toMetricsResponse(period string, m entities.MetricsSummary) metricsResponse {
	return metricsResponse{
		Period:              period,
		TotalSales:          m.TotalSales,
		TotalExpenses:       m.TotalExpenses,
		TotalProfit:         m.TotalProfit,
		AverageProfitMargin: nullable(m.AverageProfitMargin),
		AverageCustomers:    nullable(m.AverageCustomers),
		TotalInventoryCost:  m.TotalInventoryCost,
		TotalMarketingSpend: m.TotalMarketingSpend,
		RecordCount:         m.RecordCount,
	}
}

func toTrendsResponse(t entities.TrendSeries) trendsResponse {
	margins := make([]*float64, len(t.ProfitMargins))
	for i, m := range t.ProfitMargins {
		margins[i] = nullable(m)
	}
	return trendsResponse{
		Months:        t.Months,
		Sales:         t.Sales,
		Expenses:      t.Expenses,
		Profits:       t.Profits,
		Customers:     t.Customers,
		ProfitMargins: margins,
	}
}

func toAnswerResponse(session string, res entities.QAResult) answerResponse {
	sources := make([]sourceResponse, len(res.Sources))
	for i, d := range res.Sources {
		sources[i] = sourceResponse{Text: d.Text, Metadata: d.Metadata}
	}
	return answerResponse{
		SessionID: session,
		Answer:    res.Answer,
		Sources:   sources,
		Status:    string(res.Status),
	}
}
