package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/0xcro3dile/ledgerrag-go/internal/adapters/embedding"
	"github.com/0xcro3dile/ledgerrag-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/ledgerrag-go/internal/adapters/llm"
	"github.com/0xcro3dile/ledgerrag-go/internal/adapters/loader"
	"github.com/0xcro3dile/ledgerrag-go/internal/adapters/observe"
	"github.com/0xcro3dile/ledgerrag-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/ledgerrag-go/internal/app"
	"github.com/0xcro3dile/ledgerrag-go/internal/config"
	"github.com/0xcro3dile/ledgerrag-go/internal/domain/ports"
	httpserver "github.com/0xcro3dile/ledgerrag-go/internal/infrastructure/http"
	"github.com/0xcro3dile/ledgerrag-go/internal/observability"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	question := flag.String("ask", "", "answer one question and exit instead of serving")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, *configPath, *question, os.Stdout)
	stop()
	if err != nil {
		slog.Error("ledgerrag exited", "error", err)
		os.Exit(1)
	}
}

// run wires and starts the assistant. Logs go to stderr; stdout carries only
// the answer in -ask mode.
func run(ctx context.Context, configPath, question string, stdout io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing.Enabled, cfg.Tracing.ServiceName)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	store, closeStore, err := openVectorStore(cfg.Retrieval)
	if err != nil {
		return err
	}
	defer closeStore()

	embedder := embedding.NewOllamaAdapter(cfg.Ollama.BaseURL, cfg.Ollama.EmbeddingModel,
		embedding.WithConcurrency(cfg.Ollama.EmbedConcurrency),
		embedding.WithTimeout(cfg.Ollama.RequestTimeout),
		embedding.WithLogger(logger),
	)
	generator := llm.NewOllamaLLMAdapter(cfg.Ollama.BaseURL, cfg.Ollama.ChatModel,
		llm.WithTemperature(cfg.Ollama.Temperature),
		llm.WithTimeout(cfg.Ollama.RequestTimeout),
		llm.WithLogger(logger),
	)

	assistant := app.New(cfg.Ledger.CSVFile, app.Deps{
		Loader:      newLedgerLoader(cfg.Ledger),
		Embedder:    observe.WrapEmbedder(embedder, logger),
		LLM:         observe.WrapLLM(generator, logger),
		VectorStore: store,
		Logger:      logger,
	}, app.Options{
		Currency:     cfg.Ledger.Currency,
		TopK:         cfg.Retrieval.TopK,
		AskTimeout:   cfg.QA.AskTimeout,
		HistoryLimit: cfg.QA.HistoryLimit,
		Debounce:     cfg.Ledger.Debounce,
		SessionTTL:   cfg.QA.SessionTTL,
		MaxSessions:  cfg.QA.MaxSessions,
	})

	logger.Info("starting ledgerrag",
		"ledger", cfg.Ledger.CSVFile,
		"chat_model", cfg.Ollama.ChatModel,
		"embedding_model", cfg.Ollama.EmbeddingModel,
		"vector_store", cfg.Retrieval.Store,
	)
	if err := assistant.Start(ctx); err != nil {
		return err
	}

	if question != "" {
		_, res := assistant.Ask(ctx, "", question)
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if cfg.Ledger.Watch {
		watcher, err := filewatcher.NewFSNotifyWatcher([]string{".csv"}, logger)
		if err != nil {
			return fmt.Errorf("creating file watcher: %w", err)
		}
		defer watcher.Stop()

		go func() {
			if err := assistant.Watch(ctx, watcher); err != nil {
				logger.Error("ledger watch stopped", "error", err)
			}
		}()
	}

	server := httpserver.NewServer(assistant, logger, cfg.Server, cfg.Security)
	return server.Start(ctx, cfg.Address())
}

func openVectorStore(cfg config.RetrievalConfig) (ports.VectorStore, func(), error) {
	if cfg.Store == "sqlite" {
		s, err := vectordb.NewSQLiteStore(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening vector store: %w", err)
		}
		return s, func() { s.Close() }, nil
	}
	return vectordb.NewInMemoryStore(), func() {}, nil
}

func newLedgerLoader(cfg config.LedgerConfig) ports.LedgerLoader {
	if comma := cfg.Comma(); comma != ',' {
		return loader.NewDelimitedLedgerLoader(comma)
	}
	return loader.NewCSVLedgerLoader()
}
