// Package retrieval finds the part of a document that best answers a
// question. Documents are split into word chunks, every chunk and the
// question are embedded, and the chunk closest to the question by cosine
// similarity wins. Documents come from local files, web pages, alias
// files written by `spinach add`, or collections prebuilt by
// `spinach create` and stored in a SQLite index.
package retrieval

import "errors"

// Errors the chat loop reports to the user.
var (
	ErrNotFound          = errors.New("file not found")
	ErrTooLarge          = errors.New("file too large")
	ErrNotText           = errors.New("file is not UTF-8 text")
	ErrEmpty             = errors.New("no text to search")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrDimensionMismatch = errors.New("embedding dimensions do not match the collection")
	ErrAliasExists       = errors.New("alias already exists")
)

// Result is the outcome of a lookup.
type Result struct {
	// Path is the file, URL or collection the chunks came from.
	Path     string
	Question string
	Chunks   []string
	// Top indexes the best chunk in Chunks.
	Top   int
	Score float32
}

// Best returns the winning chunk.
func (r *Result) Best() string {
	if r == nil || r.Top < 0 || r.Top >= len(r.Chunks) {
		return ""
	}
	return r.Chunks[r.Top]
}
