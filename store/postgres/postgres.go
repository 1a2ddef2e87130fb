// Package postgres implements segue.MemoryStore using PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates the pool; Close releases it.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seguehq/segue"
)

// Store implements segue.MemoryStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store using an existing pgxpool.Pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the conversation tables.
func (s *Store) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at)`,
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// CreateConversation inserts a conversation record; existing ids are left
// untouched.
func (s *Store) CreateConversation(ctx context.Context, id, title string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, title, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		id, title, segue.NowUnix())
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// AppendMessage adds one turn, creating the conversation row when needed.
func (s *Store) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	if err := s.CreateConversation(ctx, conversationID, ""); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		segue.NewID(), conversationID, role, content, segue.NowUnix())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// GetConversation returns a conversation and its messages, oldest first.
func (s *Store) GetConversation(ctx context.Context, id string) (segue.Conversation, []segue.StoredMessage, error) {
	var conv segue.Conversation
	var title *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at FROM conversations WHERE id = $1`, id).
		Scan(&conv.ID, &title, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return segue.Conversation{}, nil, fmt.Errorf("conversation %s not found", id)
	}
	if err != nil {
		return segue.Conversation{}, nil, fmt.Errorf("get conversation: %w", err)
	}
	if title != nil {
		conv.Title = *title
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return segue.Conversation{}, nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []segue.StoredMessage
	for rows.Next() {
		var m segue.StoredMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return segue.Conversation{}, nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return conv, msgs, rows.Err()
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var _ segue.MemoryStore = (*Store)(nil)
