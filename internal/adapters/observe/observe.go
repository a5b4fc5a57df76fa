// Package observe decorates provider ports with tracing and logging.
package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/ports"
	"github.com/0xcro3dile/ledgerrag-go/internal/observability"
)

type observableEmbedder struct {
	next   ports.EmbeddingService
	logger *slog.Logger
}

// Compile-time interface check
var _ ports.EmbeddingService = (*observableEmbedder)(nil)

// WrapEmbedder wraps an embedding service with spans and logs.
func WrapEmbedder(next ports.EmbeddingService, logger *slog.Logger) ports.EmbeddingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &observableEmbedder{next: next, logger: logger}
}

func (o *observableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := observability.StartSpan(ctx, "embedding.Embed")
	defer span.End()
	span.SetAttributes(attribute.Int("text.length", len(text)))

	emb, err := o.next.Embed(ctx, text)
	if err != nil {
		observability.RecordError(span, err)
		o.logger.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	return emb, nil
}

func (o *observableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := observability.StartSpan(ctx, "embedding.EmbedBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(texts)))

	start := time.Now()
	embs, err := o.next.EmbedBatch(ctx, texts)
	if err != nil {
		observability.RecordError(span, err)
		o.logger.ErrorContext(ctx, "batch embedding failed", "texts", len(texts), "error", err)
		return nil, err
	}

	o.logger.DebugContext(ctx, "batch embedded", "texts", len(texts), "duration", time.Since(start))
	return embs, nil
}

type observableLLM struct {
	next   ports.LLMService
	logger *slog.Logger
}

var _ ports.LLMService = (*observableLLM)(nil)

// WrapLLM wraps a language model with spans and logs.
func WrapLLM(next ports.LLMService, logger *slog.Logger) ports.LLMService {
	if logger == nil {
		logger = slog.Default()
	}
	return &observableLLM{next: next, logger: logger}
}

func (o *observableLLM) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := observability.StartSpan(ctx, "llm.Generate")
	defer span.End()
	span.SetAttributes(attribute.Int("prompt.length", len(prompt)))

	o.logger.DebugContext(ctx, "requesting generation", "prompt_chars", len(prompt))

	start := time.Now()
	out, err := o.next.Generate(ctx, prompt)
	if err != nil {
		observability.RecordError(span, err)
		o.logger.ErrorContext(ctx, "generation failed", "error", err, "duration", time.Since(start))
		return "", err
	}

	span.SetAttributes(attribute.Int("response.length", len(out)))
	o.logger.DebugContext(ctx, "generation received", "response_chars", len(out), "duration", time.Since(start))
	return out, nil
}

func (o *observableLLM) GenerateStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	ctx, span := observability.StartSpan(ctx, "llm.GenerateStream")
	span.SetAttributes(attribute.Int("prompt.length", len(prompt)))

	in, err := o.next.GenerateStream(ctx, prompt)
	if err != nil {
		observability.RecordError(span, err)
		span.End()
		o.logger.ErrorContext(ctx, "stream generation failed", "error", err)
		return nil, err
	}

	// Relay so the span covers the whole stream.
	out := make(chan ports.StreamToken, cap(in))
	go func() {
		defer close(out)
		defer span.End()
		tokens := 0
		for tok := range in {
			if tok.Error != nil {
				observability.RecordError(span, tok.Error)
				o.logger.ErrorContext(ctx, "stream interrupted", "error", tok.Error, "tokens", tokens)
			} else {
				tokens++
			}
			out <- tok
		}
		span.SetAttributes(attribute.Int("response.tokens", tokens))
	}()
	return out, nil
}
