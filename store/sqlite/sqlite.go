// Package sqlite implements segue.MemoryStore using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/seguehq/segue"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Store implements segue.MemoryStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs with timing for every operation.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// nopLogger discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// The pool is capped at one connection so all goroutines serialize through
// it, eliminating SQLITE_BUSY errors from concurrent writers.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// DB exposes the underlying handle for callers that need raw access.
func (s *Store) DB() *sql.DB { return s.db }

// Init creates the conversation tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	tables := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// CreateConversation inserts a conversation record. Inserting an existing
// id is a no-op so callers can create idempotently per request.
func (s *Store) CreateConversation(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, title, created_at) VALUES (?, ?, ?)`,
		id, title, segue.NowUnix())
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// AppendMessage adds one turn to a conversation, creating the conversation
// row when it does not exist yet.
func (s *Store) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	if err := s.CreateConversation(ctx, conversationID, ""); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		segue.NewID(), conversationID, role, content, segue.NowUnix())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// GetConversation returns a conversation and its messages, oldest first.
func (s *Store) GetConversation(ctx context.Context, id string) (segue.Conversation, []segue.StoredMessage, error) {
	var conv segue.Conversation
	var title sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &title, &conv.CreatedAt)
	if err == sql.ErrNoRows {
		return segue.Conversation{}, nil, fmt.Errorf("conversation %s not found", id)
	}
	if err != nil {
		return segue.Conversation{}, nil, fmt.Errorf("get conversation: %w", err)
	}
	conv.Title = title.String

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at, id`, id)
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

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

var _ segue.MemoryStore = (*Store)(nil)
