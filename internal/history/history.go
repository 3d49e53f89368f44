// Package history persists support conversations in PostgreSQL: one row per
// Gmail thread and one row per inbound or outbound message.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Conversation statuses.
const (
	StatusOpen      = "open"
	StatusAnswered  = "answered"
	StatusEscalated = "escalated"
)

var (
	ErrUnknownRole   = errors.New("unknown message role")
	ErrUnknownStatus = errors.New("unknown conversation status")
	ErrNotFound      = errors.New("conversation not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	thread_id  TEXT PRIMARY KEY,
	user_email TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'open',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS messages (
	message_id  BIGSERIAL PRIMARY KEY,
	thread_id   TEXT NOT NULL REFERENCES conversations(thread_id),
	external_id TEXT UNIQUE,
	sender      TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS messages_thread_created_idx ON messages (thread_id, created_at);`

// Message is one stored message.
type Message struct {
	Role    string
	Content string
}

// Store reads and writes conversation history.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store on pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the history tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// SaveMessage appends a message to threadID, creating the conversation for
// userEmail on first use. externalID (the Gmail message ID, may be empty)
// makes the insert idempotent; saved is false when it was already stored.
func (s *Store) SaveMessage(ctx context.Context, threadID, userEmail, role, content, externalID string) (saved bool, err error) {
	if role != RoleUser && role != RoleAgent {
		return false, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO conversations (thread_id, user_email) VALUES ($1, $2)
ON CONFLICT (thread_id) DO UPDATE SET updated_at = now()`, threadID, userEmail); err != nil {
			return fmt.Errorf("failed to upsert conversation: %w", err)
		}

		tag, err := tx.Exec(ctx, `
INSERT INTO messages (thread_id, external_id, sender, content) VALUES ($1, NULLIF($2, ''), $3, $4)
ON CONFLICT (external_id) DO NOTHING`, threadID, externalID, role, content)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		saved = tag.RowsAffected() == 1
		return nil
	})
	return saved, err
}

// Messages returns the messages of threadID oldest first, leaving out the
// message whose external ID is except.
func (s *Store) Messages(ctx context.Context, threadID, except string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
SELECT sender, content FROM messages
WHERE thread_id = $1 AND ($2 = '' OR external_id IS DISTINCT FROM $2)
ORDER BY created_at, message_id`, threadID, except)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.Role, &m.Content)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return msgs, nil
}

// History returns the transcript of threadID for the draft prompt, in the
// form "User: ...\nAgent: ...". See Messages for except.
func (s *Store) History(ctx context.Context, threadID, except string) (string, error) {
	msgs, err := s.Messages(ctx, threadID, except)
	if err != nil {
		return "", err
	}
	return Format(msgs), nil
}

// Format renders msgs one per line with the role capitalised.
func Format(msgs []Message) string {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = capitalize(m.Role) + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[n:])
}

// SetStatus updates the status of threadID.
func (s *Store) SetStatus(ctx context.Context, threadID, status string) error {
	switch status {
	case StatusOpen, StatusAnswered, StatusEscalated:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}

	tag, err := s.pool.Exec(ctx, `UPDATE conversations SET status = $2, updated_at = now() WHERE thread_id = $1`, threadID, status)
	if err != nil {
		return fmt.Errorf("failed to update conversation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, threadID)
	}
	return nil
}

// Status returns the status of threadID.
func (s *Store) Status(ctx context.Context, threadID string) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM conversations WHERE thread_id = $1`, threadID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, threadID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read conversation status: %w", err)
	}
	return status, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
