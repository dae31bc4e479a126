package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spinach-rag/spinach/internal/config"
	"github.com/spinach-rag/spinach/internal/connwatch"
	"github.com/spinach-rag/spinach/internal/embeddings"
	"github.com/spinach-rag/spinach/internal/fetch"
	"github.com/spinach-rag/spinach/internal/memory"
	"github.com/spinach-rag/spinach/internal/news"
	"github.com/spinach-rag/spinach/internal/paths"
	"github.com/spinach-rag/spinach/internal/prompts"
	"github.com/spinach-rag/spinach/internal/repl"
	"github.com/spinach-rag/spinach/internal/retrieval"
	"github.com/spinach-rag/spinach/internal/search"
	"github.com/spinach-rag/spinach/internal/usage"
)

// runChat starts the interactive loop. It returns when the user types
// quit or bye, closes input, or presses Ctrl+C at the prompt.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath string, args []string) error {
	var model string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-model" && i+1 < len(args):
			model = args[i+1]
			i++
		default:
			return fmt.Errorf("chat: unexpected argument %q", args[i])
		}
	}

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configLogger(stderr, cfg)
	if cfgPath != "" {
		logger.Debug("config loaded", "path", cfgPath)
	} else {
		logger.Debug("no config file found, using defaults")
	}
	if model == "" {
		model = cfg.Models.Default
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	client := createLLMClient(cfg, logger)
	health := connwatch.Watch(ctx, connwatch.Config{
		Name:  providerFor(cfg, model),
		Probe: func(ctx context.Context) error { return client.PingModel(ctx, model) },
		OnDown: func(err error) {
			logger.Warn("model endpoint not reachable", "model", model, "error", err)
		},
		Logger: logger,
	})
	defer health.Stop()

	index, err := retrieval.OpenIndex(cfg.IndexPath())
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer index.Close()

	retriever := newRetriever(cfg, index, logger)

	var (
		recorder repl.Recorder
		meter    repl.UsageRecorder
	)
	if cfg.History.Persist {
		store, err := memory.NewSQLiteStore(cfg.TranscriptPath())
		if err != nil {
			return fmt.Errorf("open transcripts: %w", err)
		}
		defer store.Close()
		recorder = store

		usageStore, err := usage.NewStore(cfg.UsagePath())
		if err != nil {
			return fmt.Errorf("open usage: %w", err)
		}
		defer usageStore.Close()
		meter = usageStore
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = prompts.BaseSystemPrompt()
	}

	reader := repl.NewReader(stdin, stdout, cfg.HistoryFile())
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn("failed to save input history", "error", err)
		}
	}()

	session := repl.New(repl.Config{
		Chat:        client,
		Model:       model,
		History:     memory.NewHistory(systemPrompt, cfg.History.MaxMessages),
		Looker:      retriever,
		News:        newNewsClient(cfg, logger),
		Search:      newSearchManager(cfg),
		Recorder:    recorder,
		Usage:       meter,
		Health:      health,
		Provider:    providerFor(cfg, model),
		Pricing:     cfg.Pricing,
		SearchCount: cfg.Search.Count,
		Reader:      reader,
		Out:         stdout,
		Logger:      logger,
		Interruptible: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		},
	})
	return session.Run(ctx)
}

// newRetriever wires the look pipeline: embeddings, page fetches,
// prefix expansion and prebuilt collections.
func newRetriever(cfg *config.Config, index *retrieval.Index, logger *slog.Logger) *retrieval.Retriever {
	resolver := paths.New(cfg.Paths)
	if names := resolver.Prefixes(); len(names) > 0 {
		logger.Debug("path prefixes registered", "prefixes", names)
	}
	return retrieval.New(retrieval.Config{
		Embedder:     newEmbedder(cfg, logger),
		Index:        index,
		Fetcher:      newFetcher(cfg, logger),
		Paths:        resolver,
		DynamicDir:   cfg.Retrieval.DynamicDir,
		ChunkSize:    cfg.Retrieval.ChunkSize,
		Overlap:      cfg.Retrieval.Overlap,
		MaxFileBytes: cfg.Retrieval.MaxFileBytes,
		Workers:      cfg.Retrieval.Workers,
		Logger:       logger,
	})
}

// newFetcher builds the page fetcher for look <url>. Pages have their
// own cap, separate from the much larger file limit.
func newFetcher(cfg *config.Config, logger *slog.Logger) *fetch.Fetcher {
	return fetch.New(cfg.Retrieval.MaxPageBytes, logger)
}

func newEmbedder(cfg *config.Config, logger *slog.Logger) *embeddings.Client {
	return embeddings.New(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		Logger:  logger,
	})
}

func newNewsClient(cfg *config.Config, logger *slog.Logger) *news.Client {
	return news.New(news.Config{
		APIKey:  cfg.News.APIKey,
		BaseURL: cfg.News.BaseURL,
		Sources: cfg.News.Sources,
		Count:   cfg.News.Count,
		Logger:  logger,
	})
}

// newSearchManager registers every provider that has credentials and
// makes the configured one primary. An unconfigured primary still
// answers, with [search.ErrNoAPIKey], so the chat can print setup hints.
func newSearchManager(cfg *config.Config) *search.Manager {
	m := search.NewManager(cfg.Search.Provider)
	if cfg.Search.Provider == "serper" || cfg.Search.Serper.APIKey != "" {
		m.Register(search.NewSerper(cfg.Search.Serper.APIKey))
	}
	if cfg.Search.Provider == "brave" || cfg.Search.Brave.APIKey != "" {
		m.Register(search.NewBrave(cfg.Search.Brave.APIKey))
	}
	if cfg.Search.Provider == "searxng" || cfg.Search.SearXNG.URL != "" {
		m.Register(search.NewSearXNG(cfg.Search.SearXNG.URL))
	}
	return m
}
