package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
	"github.com/0xcro3dile/ledgerrag-go/internal/domain/ports"
)

// FallbackAnswer is returned whenever a question cannot be answered.
const FallbackAnswer = "I apologize, but I encountered an error processing your question."

// Retriever finds the documents most relevant to a question.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]entities.SearchResult, error)
}

// OrchestratorOptions tunes an Orchestrator. Zero values select defaults.
type OrchestratorOptions struct {
	TopK         int
	Currency     string
	Timeout      time.Duration // Bounds retrieval plus generation; 0 disables
	HistoryLimit int           // Keep at most this many turns; 0 keeps all
}

// Orchestrator answers questions over the ledger with conversation memory.
// One Ask runs at a time per orchestrator so history is never interleaved.
type Orchestrator struct {
	retriever Retriever
	llm       ports.LLMService
	logger    *slog.Logger
	opts      OrchestratorOptions

	mu      sync.Mutex
	history []entities.ConversationTurn
}

// NewOrchestrator creates an Orchestrator with injected dependencies.
func NewOrchestrator(retriever Retriever, llm ports.LLMService, logger *slog.Logger, opts OrchestratorOptions) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Currency == "" {
		opts.Currency = DefaultCurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		retriever: retriever,
		llm:       llm,
		logger:    logger,
		opts:      opts,
	}
}

// Ask answers a question. It never fails: on any retrieval or generation
// error it logs the cause and returns the fallback answer with no sources
// and a degraded status.
func (o *Orchestrator) Ask(ctx context.Context, question string) entities.QAResult {
	return o.ask(ctx, question, o.llm.Generate)
}

// AskStream is Ask with generation streamed; onToken sees each fragment as it
// arrives. Partial output from a failed stream is discarded in favour of the
// fallback answer.
func (o *Orchestrator) AskStream(ctx context.Context, question string, onToken func(string)) entities.QAResult {
	return o.ask(ctx, question, func(ctx context.Context, prompt string) (string, error) {
		return o.collectStream(ctx, prompt, onToken)
	})
}

type generateFunc func(ctx context.Context, prompt string) (string, error)

func (o *Orchestrator) ask(ctx context.Context, question string, generate generateFunc) entities.QAResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	answer, sources, err := o.answer(ctx, question, generate)
	if err != nil {
		o.logger.Error("question failed",
			"error", err,
			"question_len", len(question),
			"timeout", errors.Is(err, context.DeadlineExceeded),
		)
		return entities.QAResult{
			Answer:  FallbackAnswer,
			Sources: []entities.RetrievalDocument{},
			Status:  entities.StatusDegraded,
		}
	}

	o.history = append(o.history, entities.ConversationTurn{Question: question, Answer: answer})
	if o.opts.HistoryLimit > 0 && len(o.history) > o.opts.HistoryLimit {
		o.history = o.history[len(o.history)-o.opts.HistoryLimit:]
	}

	return entities.QAResult{Answer: answer, Sources: sources, Status: entities.StatusOK}
}

// answer runs retrieval and generation. Callers hold o.mu.
func (o *Orchestrator) answer(ctx context.Context, question string, generate generateFunc) (string, []entities.RetrievalDocument, error) {
	// 1. Retrieve supporting documents
	results, err := o.retriever.Search(ctx, question, o.opts.TopK)
	if err != nil {
		return "", nil, &entities.QueryError{Stage: "retrieve", Err: err}
	}
	sources := make([]entities.RetrievalDocument, len(results))
	for i, r := range results {
		sources[i] = r.Document
	}

	// 2. Build prompt from instruction, context, history and question
	prompt := BuildPrompt(o.opts.Currency, sources, o.history, question)

	// 3. Generate
	answer, err := generate(ctx, prompt)
	if err != nil {
		return "", nil, &entities.QueryError{Stage: "generate", Err: err}
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", nil, &entities.QueryError{Stage: "generate", Err: errors.New("empty model response")}
	}
	return answer, sources, nil
}

// collectStream drains a token stream into the full response.
func (o *Orchestrator) collectStream(ctx context.Context, prompt string, onToken func(string)) (string, error) {
	tokens, err := o.llm.GenerateStream(ctx, prompt)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case tok, ok := <-tokens:
			if !ok {
				return sb.String(), nil
			}
			if tok.Error != nil {
				return "", tok.Error
			}
			if tok.Content != "" {
				sb.WriteString(tok.Content)
				if onToken != nil {
					onToken(tok.Content)
				}
			}
			if tok.Done {
				return sb.String(), nil
			}
		}
	}
}

// History returns a copy of the conversation so far.
func (o *Orchestrator) History() []entities.ConversationTurn {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]entities.ConversationTurn, len(o.history))
	copy(out, o.history)
	return out
}

// Reset clears the conversation memory.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
}

// BuildPrompt assembles the analyst prompt.
func BuildPrompt(currency string, docs []entities.RetrievalDocument, history []entities.ConversationTurn, question string) string {
	var sb strings.Builder
	sb.WriteString("You are an AI business analyst for SME/MSME businesses.\n")
	sb.WriteString("Analyze the provided financial data and give clear insights.\n\n")
	sb.WriteString("Format rules:\n")
	fmt.Fprintf(&sb, "- Use %s symbol for currency\n", currency)
	sb.WriteString("- Show calculations clearly\n")
	sb.WriteString("- Round percentages to 1 decimal place\n\n")

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	sb.WriteString("Context: ")
	sb.WriteString(strings.Join(texts, "\n\n"))
	sb.WriteString("\nChat History: ")
	sb.WriteString(FormatHistory(history))
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnalysis:")
	return sb.String()
}

// FormatHistory serializes conversation turns, oldest first.
func FormatHistory(history []entities.ConversationTurn) string {
	lines := make([]string, 0, len(history)*2)
	for _, turn := range history {
		lines = append(lines, "Human: "+turn.Question, "Assistant: "+turn.Answer)
	}
	return strings.Join(lines, "\n")
}
