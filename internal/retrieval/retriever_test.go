package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spinach-rag/spinach/internal/fetch"
	"github.com/spinach-rag/spinach/internal/paths"
)

const fruitText = "apple apple apple cherry banana banana banana banana durian durian durian durian"

type fakeFetcher struct {
	content string
	err     error
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*fetch.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Result{URL: rawURL, Content: f.content}, nil
}

func newTestRetriever(t *testing.T, emb *keywordEmbedder) (*Retriever, string) {
	t.Helper()
	dir := t.TempDir()
	return New(Config{
		Embedder:     emb,
		DynamicDir:   filepath.Join(dir, "dynamic"),
		ChunkSize:    4,
		MaxFileBytes: 1024,
		Paths:        paths.New(map[string]string{"docs": dir}),
	}), dir
}

func TestLook_File(t *testing.T) {
	emb := &keywordEmbedder{}
	r, dir := newTestRetriever(t, emb)
	os.WriteFile(filepath.Join(dir, "fruit.txt"), []byte(fruitText), 0o644)

	res, err := r.Look(context.Background(), filepath.Join(dir, "fruit.txt"), "tell me about banana")
	if err != nil {
		t.Fatalf("Look: %v", err)
	}
	if len(res.Chunks) != 3 {
		t.Fatalf("chunks = %q", res.Chunks)
	}
	if res.Best() != "banana banana banana banana" {
		t.Errorf("Best() = %q", res.Best())
	}
	if res.Question != "tell me about banana" {
		t.Errorf("Question = %q", res.Question)
	}
	// one question + three chunks
	if emb.calls != 4 {
		t.Errorf("embed calls = %d, want 4", emb.calls)
	}
}

func TestLook_PrefixPath(t *testing.T) {
	r, dir := newTestRetriever(t, &keywordEmbedder{})
	os.WriteFile(filepath.Join(dir, "fruit.txt"), []byte(fruitText), 0o644)

	res, err := r.Look(context.Background(), "docs:fruit.txt", "durian")
	if err != nil {
		t.Fatalf("Look: %v", err)
	}
	if res.Best() != "durian durian durian durian" {
		t.Errorf("Best() = %q", res.Best())
	}
}

func TestLook_RereadsFile(t *testing.T) {
	r, dir := newTestRetriever(t, &keywordEmbedder{})
	path := filepath.Join(dir, "note.txt")

	os.WriteFile(path, []byte("first version"), 0o644)
	res, _ := r.Look(context.Background(), path, "q")
	if res.Best() != "first version" {
		t.Fatalf("Best() = %q", res.Best())
	}

	os.WriteFile(path, []byte("second version"), 0o644)
	res, _ = r.Look(context.Background(), path, "q")
	if res.Best() != "second version" {
		t.Errorf("Best() after rewrite = %q", res.Best())
	}
}

func TestLook_SingleChunkSkipsEmbedding(t *testing.T) {
	emb := &keywordEmbedder{}
	r, dir := newTestRetriever(t, emb)
	os.WriteFile(filepath.Join(dir, "short.txt"), []byte("just a few"), 0o644)

	res, err := r.Look(context.Background(), filepath.Join(dir, "short.txt"), "q")
	if err != nil {
		t.Fatalf("Look: %v", err)
	}
	if res.Best() != "just a few" || emb.calls != 0 {
		t.Errorf("Best() = %q, calls = %d", res.Best(), emb.calls)
	}
}

func TestLook_Errors(t *testing.T) {
	r, dir := newTestRetriever(t, &keywordEmbedder{fail: "cherry"})
	os.WriteFile(filepath.Join(dir, "big.txt"), []byte(strings.Repeat("x ", 1000)), 0o644)
	os.WriteFile(filepath.Join(dir, "bin.dat"), []byte{0xff, 0xfe, 0xfd}, 0o644)
	os.WriteFile(filepath.Join(dir, "blank.txt"), []byte("   \n"), 0o644)
	os.WriteFile(filepath.Join(dir, "fruit.txt"), []byte(fruitText), 0o644)

	tests := []struct {
		name   string
		target string
		want   error
	}{
		{"missing", filepath.Join(dir, "nope.txt"), ErrNotFound},
		{"too large", filepath.Join(dir, "big.txt"), ErrTooLarge},
		{"binary", filepath.Join(dir, "bin.dat"), ErrNotText},
		{"blank", filepath.Join(dir, "blank.txt"), ErrEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Look(context.Background(), tt.target, "q")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("directory", func(t *testing.T) {
		if _, err := r.Look(context.Background(), dir, "q"); err == nil {
			t.Error("expected error for directory")
		}
	})
	t.Run("embedding failure", func(t *testing.T) {
		_, err := r.Look(context.Background(), filepath.Join(dir, "fruit.txt"), "q")
		if err == nil || !strings.Contains(err.Error(), "embed chunks") {
			t.Errorf("error = %v, want embed chunks failure", err)
		}
	})
}

func TestLook_URL(t *testing.T) {
	r := New(Config{
		Embedder:  &keywordEmbedder{},
		Fetcher:   &fakeFetcher{content: fruitText},
		ChunkSize: 4,
	})
	res, err := r.Look(context.Background(), "https://example.com/fruit", "apple")
	if err != nil {
		t.Fatalf("Look: %v", err)
	}
	if res.Best() != "apple apple apple cherry" || res.Path != "https://example.com/fruit" {
		t.Errorf("result = %+v", res)
	}

	r = New(Config{Embedder: &keywordEmbedder{}, Fetcher: &fakeFetcher{err: fetch.ErrBinaryContent}})
	if _, err := r.Look(context.Background(), "https://example.com/x.png", "q"); !errors.Is(err, fetch.ErrBinaryContent) {
		t.Errorf("error = %v, want ErrBinaryContent", err)
	}
}

func TestLookAlias(t *testing.T) {
	r, dir := newTestRetriever(t, &keywordEmbedder{})
	target := filepath.Join(dir, "fruit.txt")
	os.WriteFile(target, []byte(fruitText), 0o644)
	if _, err := WriteAlias(r.cfg.DynamicDir, "", target); err != nil {
		t.Fatalf("WriteAlias: %v", err)
	}

	res, err := r.LookAlias(context.Background(), "fruit.txt.txt", "banana")
	if err != nil {
		t.Fatalf("LookAlias: %v", err)
	}
	if res.Best() != "banana banana banana banana" {
		t.Errorf("Best() = %q", res.Best())
	}

	if _, err := r.LookAlias(context.Background(), "unknown", "q"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestLookCollection(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{}
	idx := newTestIndex(t)

	parts := SplitWords(fruitText, 4, 0)
	vectors, _ := emb.GenerateBatch(ctx, parts, 1)
	var chunks []Chunk
	for i, p := range parts {
		chunks = append(chunks, Chunk{Path: "/fruit.txt", ID: fmt.Sprintf("chunk_%03d", i), Seq: i, Content: p, Embedding: vectors[i]})
	}
	idx.ReplaceCollection(ctx, Collection{Name: "fruit", Root: "/"}, chunks)

	emb.calls = 0
	r := New(Config{Embedder: emb, Index: idx})
	res, err := r.LookCollection(ctx, "fruit", "durian please")
	if err != nil {
		t.Fatalf("LookCollection: %v", err)
	}
	if res.Best() != "durian durian durian durian" {
		t.Errorf("Best() = %q", res.Best())
	}
	if emb.calls != 1 {
		t.Errorf("embed calls = %d, want only the question", emb.calls)
	}

	names, err := r.Collections(ctx)
	if err != nil || len(names) != 1 || names[0] != "fruit" {
		t.Errorf("Collections = %v, %v", names, err)
	}
}

func TestLookCollection_Errors(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	idx.ReplaceCollection(ctx, Collection{Name: "wide", Root: "/"}, []Chunk{
		{Path: "a", ID: "chunk_000", Content: "a", Embedding: []float32{1, 0, 0, 0, 0, 0}},
		{Path: "a", ID: "chunk_001", Seq: 1, Content: "b", Embedding: []float32{0, 1, 0, 0, 0, 0}},
	})

	r := New(Config{Embedder: &keywordEmbedder{}, Index: idx})
	if _, err := r.LookCollection(ctx, "missing", "q"); !errors.Is(err, ErrUnknownCollection) {
		t.Errorf("error = %v, want ErrUnknownCollection", err)
	}
	if _, err := r.LookCollection(ctx, "wide", "q"); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}

	if _, err := New(Config{Embedder: &keywordEmbedder{}}).LookCollection(ctx, "any", "q"); !errors.Is(err, ErrUnknownCollection) {
		t.Errorf("no index error = %v, want ErrUnknownCollection", err)
	}
}

func TestResultBest_Empty(t *testing.T) {
	var r *Result
	if r.Best() != "" {
		t.Error("nil result should have empty Best")
	}
	if (&Result{Top: 3}).Best() != "" {
		t.Error("out of range Top should have empty Best")
	}
}
