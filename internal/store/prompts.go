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

// MongoPromptStore keeps tenant system prompts. At most one prompt per
// tenant is active at a time; activating one deactivates the rest.
type MongoPromptStore struct {
	tenants *TenantManager
}

func NewMongoPromptStore(tenants *TenantManager) *MongoPromptStore {
	return &MongoPromptStore{tenants: tenants}
}

func (s *MongoPromptStore) Create(ctx context.Context, prompt *models.Prompt) error {
	db, err := s.tenants.GetTenantDB(prompt.TenantID)
	if err != nil {
		return err
	}

	if prompt.ID == "" {
		prompt.ID = uuid.NewString()
	}
	prompt.CreatedAt = time.Now().UTC()

	if prompt.IsActive {
		if err := s.deactivateAll(ctx, db); err != nil {
			return err
		}
	}

	if _, err := db.Collection("prompts").InsertOne(ctx, prompt); err != nil {
		return fmt.Errorf("creating prompt: %w", err)
	}
	return nil
}

func (s *MongoPromptStore) Update(ctx context.Context, prompt *models.Prompt) error {
	db, err := s.tenants.GetTenantDB(prompt.TenantID)
	if err != nil {
		return err
	}

	if prompt.IsActive {
		if err := s.deactivateAll(ctx, db); err != nil {
			return err
		}
	}

	result, err := db.Collection("prompts").ReplaceOne(ctx, bson.M{"_id": prompt.ID}, prompt)
	if err != nil {
		return fmt.Errorf("updating prompt: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoPromptStore) Delete(ctx context.Context, tenantID, promptID string) error {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return err
	}

	result, err := db.Collection("prompts").DeleteOne(ctx, bson.M{"_id": promptID})
	if err != nil {
		return fmt.Errorf("deleting prompt: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoPromptStore) List(ctx context.Context, tenantID string) ([]models.Prompt, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := db.Collection("prompts").Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing prompts: %w", err)
	}
	defer cursor.Close(ctx)

	var prompts []models.Prompt
	if err := cursor.All(ctx, &prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}

func (s *MongoPromptStore) GetActive(ctx context.Context, tenantID string) (*models.Prompt, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	var prompt models.Prompt
	err = db.Collection("prompts").FindOne(ctx, bson.M{"is_active": true}).Decode(&prompt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching active prompt: %w", err)
	}
	return &prompt, nil
}

func (s *MongoPromptStore) deactivateAll(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("prompts").UpdateMany(ctx,
		bson.M{"is_active": true},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	return err
}
