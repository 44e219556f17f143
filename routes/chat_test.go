package routes

import (
	"context"
	"errors"
	"testing"

	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/models"
)

type stubConversations struct {
	conversations map[string]*models.Conversation
	deleted       []string
}

func newStubConversations(convs ...*models.Conversation) *stubConversations {
	s := &stubConversations{conversations: make(map[string]*models.Conversation)}
	for _, c := range convs {
		s.conversations[c.ID] = c
	}
	return s
}

func (s *stubConversations) CreateConversation(ctx context.Context, tenantID, userID, title string) (*models.Conversation, error) {
	return nil, errors.New("not implemented")
}

func (s *stubConversations) GetConversation(ctx context.Context, tenantID, conversationID string) (*models.Conversation, error) {
	conv, ok := s.conversations[conversationID]
	if !ok || conv.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

func (s *stubConversations) ListConversations(ctx context.Context, tenantID, userID string, limit int) ([]models.Conversation, error) {
	return nil, nil
}

func (s *stubConversations) DeleteConversation(ctx context.Context, tenantID, conversationID string) error {
	if _, ok := s.conversations[conversationID]; !ok {
		return store.ErrNotFound
	}
	delete(s.conversations, conversationID)
	s.deleted = append(s.deleted, conversationID)
	return nil
}

func (s *stubConversations) AppendMessage(ctx context.Context, tenantID string, msg *models.Message) error {
	return nil
}

func (s *stubConversations) ListMessages(ctx context.Context, tenantID, conversationID string) ([]models.Message, error) {
	return nil, nil
}

func TestOwnedConversation(t *testing.T) {
	conversations := newStubConversations(&models.Conversation{
		ID:       "conv-1",
		TenantID: "tenant-a",
		UserID:   "user-alice",
	})

	t.Run("owner can load it", func(t *testing.T) {
		conv, err := ownedConversation(context.Background(), conversations, "tenant-a", "user-alice", "conv-1")
		if err != nil {
			t.Fatalf("ownedConversation: %v", err)
		}
		if conv.ID != "conv-1" {
			t.Fatalf("got conversation %q, want conv-1", conv.ID)
		}
	})

	t.Run("another user in the same tenant gets not found", func(t *testing.T) {
		_, err := ownedConversation(context.Background(), conversations, "tenant-a", "user-bob", "conv-1")
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("got %v, want store.ErrNotFound", err)
		}
	})

	t.Run("missing conversation gets not found", func(t *testing.T) {
		_, err := ownedConversation(context.Background(), conversations, "tenant-a", "user-alice", "conv-missing")
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("got %v, want store.ErrNotFound", err)
		}
	})
}
