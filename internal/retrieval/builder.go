package retrieval

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// skipExts are never indexed: data, images and Python build artifacts.
var skipExts = map[string]bool{
	".json": true,
	".jpg":  true,
	".png":  true,
	".pyc":  true,
	".pkl":  true,
}

// Store persists built collections.
type Store interface {
	ReplaceCollection(ctx context.Context, col Collection, chunks []Chunk) error
}

// Builder turns a directory tree into a stored collection.
type Builder struct {
	Embedder     Embedder
	Store        Store
	Model        string
	ChunkSize    int
	Overlap      int
	MaxFileBytes int64
	Workers      int
	Logger       *slog.Logger
	// Progress, if set, is called after each file is embedded.
	Progress func(path string, chunks int)
}

// BuildStats summarizes a build.
type BuildStats struct {
	Files   int
	Chunks  int
	Skipped int
	Elapsed time.Duration
}

// Build walks root, embeds every text file and stores the chunks as
// collection name, replacing any previous collection of that name.
// Nothing is written if any embedding fails.
func (b *Builder) Build(ctx context.Context, root, name string) (*BuildStats, error) {
	if name == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "builder", "collection", name)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	if _, err := os.Stat(absRoot); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, root)
	}

	start := time.Now()
	stats := &BuildStats{}
	var all []Chunk

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || skipExts[strings.ToLower(filepath.Ext(path))] {
			stats.Skipped++
			return nil
		}

		text, ok, err := b.readText(path, d)
		if err != nil {
			return err
		}
		if !ok {
			logger.Debug("skipping file", "path", path)
			stats.Skipped++
			return nil
		}

		parts := SplitWords(text, b.ChunkSize, b.Overlap)
		if len(parts) == 0 {
			stats.Skipped++
			return nil
		}

		vectors, err := b.Embedder.GenerateBatch(ctx, parts, b.Workers)
		if err != nil {
			return fmt.Errorf("embed %s: %w", path, err)
		}
		for i, part := range parts {
			all = append(all, Chunk{
				Path:      path,
				ID:        fmt.Sprintf("chunk_%03d", i),
				Seq:       len(all),
				Content:   part,
				Embedding: vectors[i],
			})
		}

		stats.Files++
		stats.Chunks += len(parts)
		logger.Debug("file embedded", "path", path, "chunks", len(parts))
		if b.Progress != nil {
			b.Progress(path, len(parts))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stats.Chunks == 0 {
		return nil, fmt.Errorf("%w: no text files under %s", ErrEmpty, root)
	}

	col := Collection{Name: name, Root: absRoot, Model: b.Model}
	if err := b.Store.ReplaceCollection(ctx, col, all); err != nil {
		return nil, fmt.Errorf("store collection: %w", err)
	}

	stats.Elapsed = time.Since(start)
	logger.Info("collection built",
		"files", stats.Files,
		"chunks", stats.Chunks,
		"skipped", stats.Skipped,
		"elapsed", stats.Elapsed,
	)
	return stats, nil
}

// readText returns the file contents, or ok=false for files that are too
// large or not UTF-8.
func (b *Builder) readText(path string, d fs.DirEntry) (string, bool, error) {
	if b.MaxFileBytes > 0 {
		info, err := d.Info()
		if err != nil {
			return "", false, err
		}
		if info.Size() > b.MaxFileBytes {
			return "", false, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", false, nil
	}
	return string(data), true, nil
}
