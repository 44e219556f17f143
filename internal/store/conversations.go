package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tenant-rag-chatbot/models"
)

// MongoConversationStore keeps conversations and messages in the tenant's
// database.
type MongoConversationStore struct {
	tenants *TenantManager
}

func NewMongoConversationStore(tenants *TenantManager) *MongoConversationStore {
	return &MongoConversationStore{tenants: tenants}
}

func (s *MongoConversationStore) CreateConversation(ctx context.Context, tenantID, userID, title string) (*models.Conversation, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := db.Collection("conversations").InsertOne(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, nil
}

func (s *MongoConversationStore) GetConversation(ctx context.Context, tenantID, conversationID string) (*models.Conversation, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	err = db.Collection("conversations").FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching conversation: %w", err)
	}
	return &conv, nil
}

func (s *MongoConversationStore) ListConversations(ctx context.Context, tenantID, userID string, limit int) ([]models.Conversation, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := db.Collection("conversations").Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var conversations []models.Conversation
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (s *MongoConversationStore) DeleteConversation(ctx context.Context, tenantID, conversationID string) error {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return err
	}

	result, err := db.Collection("conversations").DeleteOne(ctx, bson.M{"_id": conversationID})
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}

	_, err = db.Collection("messages").DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	return err
}

// AppendMessage stores one message and bumps the conversation's updated_at.
func (s *MongoConversationStore) AppendMessage(ctx context.Context, tenantID string, msg *models.Message) error {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return err
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.TenantID = tenantID

	if _, err := db.Collection("messages").InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("appending message: %w", err)
	}

	_, err = db.Collection("conversations").UpdateOne(ctx,
		bson.M{"_id": msg.ConversationID},
		bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}},
	)
	return err
}

func (s *MongoConversationStore) ListMessages(ctx context.Context, tenantID, conversationID string) ([]models.Message, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := db.Collection("messages").Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
