package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Chunk is one embedded piece of a file in a collection.
type Chunk struct {
	Path      string
	ID        string // chunk_000, chunk_001, ... per file
	Seq       int
	Content   string
	Embedding []float32
}

// Collection describes a named set of chunks built by create.
type Collection struct {
	Name      string
	Root      string
	Model     string
	Files     int
	Chunks    int
	CreatedAt time.Time
}

// Index stores collections of embedded chunks in SQLite.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if needed) the index database at path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	idx, err := NewIndexWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// NewIndexWithDB wraps an existing database connection.
func NewIndexWithDB(db *sql.DB) (*Index, error) {
	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return idx, nil
}

func (x *Index) migrate() error {
	_, err := x.db.Exec(`
		CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			root TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chunks (
			collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
			path TEXT NOT NULL,
			chunk_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB,
			PRIMARY KEY (collection, path, chunk_id)
		);

		CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection, seq);
	`)
	return err
}

// Close closes the database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

// ReplaceCollection writes chunks as collection name, removing whatever
// the collection held before. The write is atomic.
func (x *Index) ReplaceCollection(ctx context.Context, col Collection, chunks []Chunk) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, col.Name); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, col.Name); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}

	created := col.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collections (name, root, model, created_at) VALUES (?, ?, ?, ?)`,
		col.Name, col.Root, col.Model, created.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, path, chunk_id, seq, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, col.Name, c.Path, c.ID, c.Seq, c.Content, encodeEmbedding(c.Embedding)); err != nil {
			return fmt.Errorf("insert %s/%s: %w", c.Path, c.ID, err)
		}
	}

	return tx.Commit()
}

// Collection returns the metadata for name, or ErrUnknownCollection.
func (x *Index) Collection(ctx context.Context, name string) (*Collection, error) {
	row := x.db.QueryRowContext(ctx, `
		SELECT c.name, c.root, c.model, c.created_at,
			COUNT(DISTINCT k.path), COUNT(k.chunk_id)
		FROM collections c LEFT JOIN chunks k ON k.collection = c.name
		WHERE c.name = ?
		GROUP BY c.name
	`, name)
	col, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	return col, nil
}

// Collections lists every collection, by name.
func (x *Index) Collections(ctx context.Context) ([]Collection, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT c.name, c.root, c.model, c.created_at,
			COUNT(DISTINCT k.path), COUNT(k.chunk_id)
		FROM collections c LEFT JOIN chunks k ON k.collection = c.name
		GROUP BY c.name
		ORDER BY c.name
	`)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		col, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *col)
	}
	return out, rows.Err()
}

// Chunks loads every chunk of collection name in build order.
func (x *Index) Chunks(ctx context.Context, name string) ([]Chunk, error) {
	if _, err := x.Collection(ctx, name); err != nil {
		return nil, err
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT path, chunk_id, seq, content, embedding
		FROM chunks WHERE collection = ?
		ORDER BY seq
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.Path, &c.ID, &c.Seq, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = decodeEmbedding(blob)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCollection removes a collection and its chunks.
func (x *Index) DeleteCollection(ctx context.Context, name string) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	res, err := x.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollection(row rowScanner) (*Collection, error) {
	var col Collection
	var created string
	if err := row.Scan(&col.Name, &col.Root, &col.Model, &created, &col.Files, &col.Chunks); err != nil {
		return nil, err
	}
	col.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &col, nil
}

// encodeEmbedding stores a vector as little-endian float32s.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	result := make([]float32, len(data)/4)
	for i := range result {
		result[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return result
}
