package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestBuild(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":       "apple apple banana banana cherry",
		"sub/b.md":    "durian durian",
		".git/config": "apple apple apple",
		"data.json":   `{"apple": 1}`,
		"img.PNG":     "not really a png",
		"cache/x.pyc": "bytecode",
		"model.pkl":   "pickle",
		"binary.bin":  string([]byte{0xff, 0xfe}),
		"empty.txt":   "",
	})
	idx := newTestIndex(t)

	var progress []string
	b := &Builder{
		Embedder:  &keywordEmbedder{},
		Store:     idx,
		Model:     "nomic-embed-text",
		ChunkSize: 2,
		Workers:   2,
		Progress:  func(path string, n int) { progress = append(progress, filepath.Base(path)) },
	}
	stats, err := b.Build(context.Background(), root, "fruit")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if stats.Files != 2 || stats.Chunks != 4 {
		t.Errorf("stats = %+v, want 2 files / 4 chunks", stats)
	}
	if stats.Skipped != 6 {
		t.Errorf("skipped = %d, want 6", stats.Skipped)
	}
	if strings.Join(progress, ",") != "a.txt,b.md" {
		t.Errorf("progress = %v", progress)
	}

	chunks, err := idx.Chunks(context.Background(), "fruit")
	if err != nil {
		t.Fatalf("Chunks: %v", err)
	}
	wantIDs := []string{"chunk_000", "chunk_001", "chunk_002", "chunk_000"}
	for i, c := range chunks {
		if c.ID != wantIDs[i] {
			t.Errorf("chunk %d id = %q, want %q", i, c.ID, wantIDs[i])
		}
		if len(c.Embedding) != len(vocab) {
			t.Errorf("chunk %d embedding = %v", i, c.Embedding)
		}
	}
	if chunks[2].Content != "cherry" {
		t.Errorf("chunk 2 = %q, want cherry", chunks[2].Content)
	}

	col, _ := idx.Collection(context.Background(), "fruit")
	if col.Root != root || col.Model != "nomic-embed-text" {
		t.Errorf("collection = %+v", col)
	}
}

func TestBuild_EmbeddingFailureWritesNothing(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt": "apple",
		"b.txt": "cherry",
	})
	idx := newTestIndex(t)

	b := &Builder{Embedder: &keywordEmbedder{fail: "cherry"}, Store: idx, ChunkSize: 10}
	if _, err := b.Build(context.Background(), root, "fruit"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := idx.Collection(context.Background(), "fruit"); !errors.Is(err, ErrUnknownCollection) {
		t.Errorf("collection should not exist: %v", err)
	}
}

func TestBuild_Errors(t *testing.T) {
	idx := newTestIndex(t)
	b := &Builder{Embedder: &keywordEmbedder{}, Store: idx, ChunkSize: 10}

	if _, err := b.Build(context.Background(), filepath.Join(t.TempDir(), "missing"), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing root error = %v, want ErrNotFound", err)
	}
	if _, err := b.Build(context.Background(), t.TempDir(), ""); err == nil {
		t.Error("expected error for empty name")
	}

	empty := writeTree(t, map[string]string{"data.json": "{}"})
	if _, err := b.Build(context.Background(), empty, "x"); !errors.Is(err, ErrEmpty) {
		t.Errorf("no text error = %v, want ErrEmpty", err)
	}
}

func TestBuild_SkipsLargeFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"small.txt": "apple",
		"large.txt": strings.Repeat("banana ", 100),
	})
	idx := newTestIndex(t)

	b := &Builder{Embedder: &keywordEmbedder{}, Store: idx, ChunkSize: 10, MaxFileBytes: 64}
	stats, err := b.Build(context.Background(), root, "small")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Files != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
