package retrieval

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

// vocab gives the fake embedder one dimension per word.
var vocab = []string{"apple", "banana", "cherry", "durian"}

// keywordEmbedder counts vocabulary words, so a question about bananas
// lands nearest the chunk that mentions them most.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  string
	dims  int
}

func (e *keywordEmbedder) Generate(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fail != "" && strings.Contains(text, e.fail) {
		return nil, errors.New("embedding model unavailable")
	}
	dims := e.dims
	if dims == 0 {
		dims = len(vocab)
	}
	v := make([]float32, dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, "?.,!")
		for i, k := range vocab {
			if i < dims && w == k {
				v[i]++
			}
		}
	}
	return v, nil
}

func (e *keywordEmbedder) GenerateBatch(ctx context.Context, texts []string, _ int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Generate(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	idx, err := NewIndexWithDB(db)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	return idx
}
