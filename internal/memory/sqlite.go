package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrSessionNotFound is returned when a session id (or prefix) matches
// nothing.
var ErrSessionNotFound = errors.New("session not found")

// ErrAmbiguousSession is returned when a session id prefix matches more
// than one session.
var ErrAmbiguousSession = errors.New("session id prefix is ambiguous")

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Session is one chat session: the messages between startup or reset
// and the next reset or exit.
type Session struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  int       `json:"messages"`
	Tokens    int       `json:"tokens"`
}

// Message is one recorded transcript entry.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // system, user, assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SQLiteStore records chat transcripts in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the transcript database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store, err := NewSQLiteStoreWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStoreWithDB wraps an existing database connection.
func NewSQLiteStoreWithDB(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			token_count INTEGER DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	`)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StartSession creates a new session for model.
func (s *SQLiteStore) StartSession(ctx context.Context, model string) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	now := time.Now().UTC()
	ts := now.Format(timeLayout)

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, model, started_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, id.String(), model, ts, ts); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Session{
		ID:        id.String(),
		Model:     model,
		StartedAt: now,
		UpdatedAt: now,
	}, nil
}

// Append records a message in a session.
func (s *SQLiteStore) Append(ctx context.Context, sessionID, role, content string) error {
	msgID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	ts := time.Now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, ts, sessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, timestamp, token_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msgID.String(), sessionID, role, content, ts, estimateTokens(content)); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return tx.Commit()
}

const sessionColumns = `
	SELECT s.id, s.model, s.started_at, s.updated_at,
		COUNT(m.seq), COALESCE(SUM(m.token_count), 0)
	FROM sessions s
	LEFT JOIN messages m ON m.session_id = s.id
`

// Sessions returns the most recently updated sessions first. A limit of
// zero or less returns all of them.
func (s *SQLiteStore) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, sessionColumns+`
		GROUP BY s.id
		ORDER BY s.updated_at DESC, s.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// Latest returns the most recently updated session.
func (s *SQLiteStore) Latest(ctx context.Context) (*Session, error) {
	sessions, err := s.Sessions(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrSessionNotFound
	}
	return &sessions[0], nil
}

// Session looks up a session by its full id or a unique id prefix.
func (s *SQLiteStore) Session(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	rows, err := s.db.QueryContext(ctx, sessionColumns+`
		WHERE s.id = ? OR s.id LIKE ? ESCAPE '\'
		GROUP BY s.id
		ORDER BY s.id
		LIMIT 2
	`, id, escapeLike(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	defer rows.Close()

	var found []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		if sess.ID == id {
			return sess, nil
		}
		found = append(found, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousSession, id)
	}
}

// Messages returns every message of a session in the order recorded.
func (s *SQLiteStore) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, timestamp
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp, _ = time.Parse(timeLayout, ts)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// DeleteSession removes a session and its messages.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var started, updated string
	if err := row.Scan(&sess.ID, &sess.Model, &started, &updated, &sess.Messages, &sess.Tokens); err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.StartedAt, _ = time.Parse(timeLayout, started)
	sess.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &sess, nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// estimateTokens approximates a token count at four bytes per token.
func estimateTokens(s string) int {
	return len(s) / 4
}
