package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spinach-rag/spinach/internal/retrieval"
)

// runCreate embeds every text file under a directory and stores the
// result as a named collection for `look data <name>`.
func runCreate(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: spinach create <path> <name>")
	}
	root, name := args[0], args[1]

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configLogger(stderr, cfg)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	index, err := retrieval.OpenIndex(cfg.IndexPath())
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer index.Close()

	embedder := newEmbedder(cfg, logger)
	builder := &retrieval.Builder{
		Embedder:     embedder,
		Store:        index,
		Model:        embedder.Model(),
		ChunkSize:    cfg.Retrieval.ChunkSize,
		Overlap:      cfg.Retrieval.Overlap,
		MaxFileBytes: cfg.Retrieval.MaxFileBytes,
		Workers:      cfg.Retrieval.Workers,
		Logger:       logger,
	}
	if outputFmt == "text" {
		builder.Progress = func(path string, chunks int) {
			fmt.Fprintf(stdout, "  %s (%d chunks)\n", path, chunks)
		}
	}

	stats, err := builder.Build(ctx, root, name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	if outputFmt == "json" {
		return writeJSON(stdout, map[string]any{
			"collection": name,
			"files":      stats.Files,
			"chunks":     stats.Chunks,
			"skipped":    stats.Skipped,
			"elapsed_ms": stats.Elapsed.Milliseconds(),
		})
	}
	fmt.Fprintf(stdout, "Collection %q: %d files, %d chunks, %d skipped in %s\n",
		name, stats.Files, stats.Chunks, stats.Skipped, stats.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(stdout, "Ask about it with: look data %s\n", name)
	return nil
}
