package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "segue.db"))
	t.Cleanup(func() { s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestConversationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateConversation(ctx, "c1", "standup notes"); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := s.AppendMessage(ctx, "c1", "user", "create a ticket for the login bug"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := s.AppendMessage(ctx, "c1", "assistant", "Created ticket PROJ-1"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	conv, msgs, err := s.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.Title != "standup notes" {
		t.Errorf("title = %q", conv.Title)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("roles = %q, %q", msgs[0].Role, msgs[1].Role)
	}
}

func TestAppendCreatesConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AppendMessage(ctx, "implicit", "user", "hello"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	conv, msgs, err := s.GetConversation(ctx, "implicit")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.ID != "implicit" || len(msgs) != 1 {
		t.Errorf("conv = %+v, msgs = %d", conv, len(msgs))
	}
}

func TestCreateConversationIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateConversation(ctx, "c1", "first"); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := s.CreateConversation(ctx, "c1", "second"); err != nil {
		t.Fatalf("CreateConversation again: %v", err)
	}
	conv, _, err := s.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.Title != "first" {
		t.Errorf("title = %q, want original kept", conv.Title)
	}
}

func TestGetConversationMissing(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.GetConversation(context.Background(), "nope"); err == nil {
		t.Fatal("want error for missing conversation")
	}
}
