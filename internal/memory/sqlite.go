package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a SQLite-backed ConversationStore. A turn's messages
// are written with a single multi-row INSERT, so concurrent appends
// for the same identity never interleave and a failed append leaves
// nothing behind.
type SQLiteStore struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// OpenSQLite opens (or creates) the database at path with the cgo
// driver and returns a store over it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore creates a store over an open database, running
// migrations on first use.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, nowFunc: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate creates the database schema. Timestamps are unix
// nanoseconds so ordering does not depend on driver time formatting.
func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS conversation_messages (
		seq               INTEGER PRIMARY KEY AUTOINCREMENT,
		id                TEXT NOT NULL UNIQUE,
		identity          TEXT NOT NULL,
		ts                INTEGER NOT NULL,
		role              TEXT NOT NULL,
		content           TEXT NOT NULL,
		channel           TEXT NOT NULL DEFAULT '',
		thread            TEXT NOT NULL DEFAULT '',
		invocations       TEXT,
		prompt_tokens     INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_messages_identity
		ON conversation_messages(identity, ts, seq);
	`)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append implements ConversationStore.
func (s *SQLiteStore) Append(ctx context.Context, identity string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO conversation_messages
		(id, identity, ts, role, content, channel, thread, invocations, prompt_tokens, completion_tokens)
		VALUES `)
	args := make([]any, 0, len(msgs)*10)
	for i, m := range msgs {
		m = prepare(m, s.nowFunc, newID)
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")

		var invocations any
		if len(m.Invocations) > 0 {
			data, err := json.Marshal(m.Invocations)
			if err != nil {
				return fmt.Errorf("marshal invocations: %w", err)
			}
			invocations = string(data)
		}
		args = append(args, m.ID, identity, m.Timestamp.UnixNano(), m.Role, m.Content,
			m.Channel, m.Thread, invocations, m.PromptTokens, m.CompletionTokens)
	}

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	return nil
}

// Recent implements ConversationStore.
func (s *SQLiteStore) Recent(ctx context.Context, identity string, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, role, content, channel, thread, invocations, prompt_tokens, completion_tokens
		FROM (
			SELECT * FROM conversation_messages
			WHERE identity = ?
			ORDER BY ts DESC, seq DESC
			LIMIT ?
		)
		ORDER BY ts ASC, seq ASC
	`, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m           Message
			ts          int64
			invocations sql.NullString
		)
		if err := rows.Scan(&m.ID, &ts, &m.Role, &m.Content, &m.Channel, &m.Thread,
			&invocations, &m.PromptTokens, &m.CompletionTokens); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = time.Unix(0, ts)
		if invocations.Valid && invocations.String != "" {
			if err := json.Unmarshal([]byte(invocations.String), &m.Invocations); err != nil {
				return nil, fmt.Errorf("decode invocations for %s: %w", m.ID, err)
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Prune implements ConversationStore.
func (s *SQLiteStore) Prune(ctx context.Context, identity string, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_messages WHERE identity = ? AND ts < ?`,
		identity, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", identity, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PruneAll implements ConversationStore.
func (s *SQLiteStore) PruneAll(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_messages WHERE ts < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Identities implements ConversationStore.
func (s *SQLiteStore) Identities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT identity FROM conversation_messages ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns row counts for diagnostics.
func (s *SQLiteStore) Stats(ctx context.Context) (map[string]any, error) {
	var identities, messages, tokens int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT identity), COUNT(*),
		       COALESCE(SUM(prompt_tokens + completion_tokens), 0)
		FROM conversation_messages
	`).Scan(&identities, &messages, &tokens)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"identities":   identities,
		"messages":     messages,
		"total_tokens": tokens,
		"storage":      "sqlite",
	}, nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
