package segue

import "context"

// Conversation is a persisted conversation record.
type Conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
}

// StoredMessage is a persisted conversation turn.
type StoredMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"` // "user" or "assistant"
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
}

// MemoryStore persists conversations across requests. Optional: when the
// orchestrator has no store, history lives entirely with the caller.
type MemoryStore interface {
	CreateConversation(ctx context.Context, id, title string) error
	AppendMessage(ctx context.Context, conversationID, role, content string) error
	GetConversation(ctx context.Context, id string) (Conversation, []StoredMessage, error)

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
}

// Delegate is a hand-off target for requests the orchestrator routes to
// another agent. Enabled via configuration; when absent, delegation
// keywords classify as general chat.
type Delegate interface {
	Name() string
	Execute(ctx context.Context, task string) (string, error)
}
