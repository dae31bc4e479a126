package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spinach-rag/spinach/internal/embeddings"
	"github.com/spinach-rag/spinach/internal/fetch"
	"github.com/spinach-rag/spinach/internal/paths"
)

// Embedder turns text into vectors.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	GenerateBatch(ctx context.Context, texts []string, workers int) ([][]float32, error)
}

// PageFetcher downloads the readable text of a web page.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Result, error)
}

// ChunkSource provides prebuilt collections.
type ChunkSource interface {
	Chunks(ctx context.Context, name string) ([]Chunk, error)
	Collections(ctx context.Context) ([]Collection, error)
}

// Config configures a Retriever.
type Config struct {
	Embedder Embedder
	// Index serves `look data`. Nil disables collections.
	Index ChunkSource
	// Fetcher serves URL targets. Nil disables them.
	Fetcher PageFetcher
	// Paths expands named prefixes and ~ in file targets.
	Paths        *paths.Resolver
	DynamicDir   string
	ChunkSize    int
	Overlap      int
	MaxFileBytes int64
	Workers      int
	Logger       *slog.Logger
}

// Retriever answers look requests.
type Retriever struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Retriever.
func New(cfg Config) *Retriever {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 200
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 100 << 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{cfg: cfg, logger: logger.With("component", "retrieval")}
}

// IsURL reports whether target is fetched over HTTP rather than read
// from disk.
func IsURL(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}

// Look finds the chunk of target (a file path or http(s) URL) that best
// answers question. Files are read from disk on every call.
func (r *Retriever) Look(ctx context.Context, target, question string) (*Result, error) {
	var (
		text string
		err  error
	)
	if IsURL(target) {
		text, err = r.readURL(ctx, target)
	} else {
		text, err = r.readFile(r.cfg.Paths.Resolve(target))
	}
	if err != nil {
		return nil, err
	}

	chunks := SplitWords(text, r.cfg.ChunkSize, r.cfg.Overlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, target)
	}
	return r.rank(ctx, target, question, chunks, nil)
}

// LookAlias resolves the alias file name in the dynamic directory and
// looks at the path it holds.
func (r *Retriever) LookAlias(ctx context.Context, name, question string) (*Result, error) {
	target, err := ReadAlias(r.cfg.DynamicDir, name)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("alias resolved", "alias", name, "target", target)
	return r.Look(ctx, target, question)
}

// LookCollection ranks the stored chunks of a prebuilt collection.
func (r *Retriever) LookCollection(ctx context.Context, name, question string) (*Result, error) {
	if r.cfg.Index == nil {
		return nil, fmt.Errorf("%w: %s (no index configured)", ErrUnknownCollection, name)
	}
	stored, err := r.cfg.Index.Chunks(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("%w: collection %s", ErrEmpty, name)
	}

	chunks := make([]string, len(stored))
	vectors := make([][]float32, len(stored))
	for i, c := range stored {
		chunks[i] = c.Content
		vectors[i] = c.Embedding
	}
	return r.rank(ctx, name, question, chunks, vectors)
}

// Collections lists the names of prebuilt collections.
func (r *Retriever) Collections(ctx context.Context) ([]string, error) {
	if r.cfg.Index == nil {
		return nil, nil
	}
	cols, err := r.cfg.Index.Collections(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names, nil
}

// Aliases lists the alias names in the dynamic directory.
func (r *Retriever) Aliases() ([]string, error) {
	return Aliases(r.cfg.DynamicDir)
}

// rank embeds the question and picks the closest chunk. When vectors is
// nil the chunks are embedded first.
func (r *Retriever) rank(ctx context.Context, source, question string, chunks []string, vectors [][]float32) (*Result, error) {
	result := &Result{Path: source, Question: question, Chunks: chunks}

	// A single chunk wins without asking the embedding model.
	if len(chunks) == 1 {
		return result, nil
	}

	q, err := r.cfg.Embedder.Generate(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	if vectors == nil {
		vectors, err = r.cfg.Embedder.GenerateBatch(ctx, chunks, r.cfg.Workers)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
	} else if len(vectors[0]) != len(q) {
		return nil, fmt.Errorf("%w: collection has %d dimensions, question has %d",
			ErrDimensionMismatch, len(vectors[0]), len(q))
	}

	result.Top = embeddings.ArgMax(q, vectors)
	result.Score = embeddings.CosineSimilarity(q, vectors[result.Top])

	r.logger.Debug("chunk selected",
		"source", source,
		"chunks", len(chunks),
		"top", result.Top,
		"score", result.Score,
		"ranking", embeddings.TopK(q, vectors, 3),
	)
	return result, nil
}

func (r *Retriever) readFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory; build a collection with `spinach create`", path)
	}
	if info.Size() > r.cfg.MaxFileBytes {
		return "", fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrTooLarge, path, info.Size(), r.cfg.MaxFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s", ErrNotText, path)
	}
	return string(data), nil
}

func (r *Retriever) readURL(ctx context.Context, target string) (string, error) {
	if r.cfg.Fetcher == nil {
		return "", fmt.Errorf("web pages are not enabled")
	}
	page, err := r.cfg.Fetcher.Fetch(ctx, target)
	if err != nil {
		return "", err
	}
	if page.Truncated {
		r.logger.Warn("page truncated", "url", target)
	}
	return page.Content, nil
}
