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

// MongoKnowledgeStore keeps knowledge items in the tenant's database.
type MongoKnowledgeStore struct {
	tenants *TenantManager
}

func NewMongoKnowledgeStore(tenants *TenantManager) *MongoKnowledgeStore {
	return &MongoKnowledgeStore{tenants: tenants}
}

func (s *MongoKnowledgeStore) Create(ctx context.Context, item *models.KnowledgeItem) error {
	db, err := s.tenants.GetTenantDB(item.TenantID)
	if err != nil {
		return err
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	item.IsActive = true

	if _, err := db.Collection("knowledge_items").InsertOne(ctx, item); err != nil {
		return fmt.Errorf("creating knowledge item: %w", err)
	}
	return nil
}

func (s *MongoKnowledgeStore) Update(ctx context.Context, item *models.KnowledgeItem) error {
	db, err := s.tenants.GetTenantDB(item.TenantID)
	if err != nil {
		return err
	}

	item.UpdatedAt = time.Now().UTC()
	result, err := db.Collection("knowledge_items").ReplaceOne(ctx, bson.M{"_id": item.ID}, item)
	if err != nil {
		return fmt.Errorf("updating knowledge item: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoKnowledgeStore) Delete(ctx context.Context, tenantID, itemID string) error {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return err
	}

	result, err := db.Collection("knowledge_items").DeleteOne(ctx, bson.M{"_id": itemID})
	if err != nil {
		return fmt.Errorf("deleting knowledge item: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoKnowledgeStore) GetByID(ctx context.Context, tenantID, itemID string) (*models.KnowledgeItem, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	var item models.KnowledgeItem
	err = db.Collection("knowledge_items").FindOne(ctx, bson.M{"_id": itemID}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching knowledge item: %w", err)
	}
	return &item, nil
}

func (s *MongoKnowledgeStore) GetByVectorIDs(ctx context.Context, tenantID string, vectorIDs []string) ([]models.KnowledgeItem, error) {
	if len(vectorIDs) == 0 {
		return nil, nil
	}

	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	cursor, err := db.Collection("knowledge_items").Find(ctx, bson.M{"vector_id": bson.M{"$in": vectorIDs}})
	if err != nil {
		return nil, fmt.Errorf("fetching knowledge items by vector id: %w", err)
	}
	defer cursor.Close(ctx)

	var items []models.KnowledgeItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *MongoKnowledgeStore) List(ctx context.Context, tenantID string, limit, offset int) ([]models.KnowledgeItem, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := db.Collection("knowledge_items").Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing knowledge items: %w", err)
	}
	defer cursor.Close(ctx)

	var items []models.KnowledgeItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteByFileID removes all items created from one uploaded file and
// returns them so the caller can drop their vectors.
func (s *MongoKnowledgeStore) DeleteByFileID(ctx context.Context, tenantID, fileID string) ([]models.KnowledgeItem, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"uploaded_file_id": fileID}
	cursor, err := db.Collection("knowledge_items").Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("fetching knowledge items for file: %w", err)
	}
	defer cursor.Close(ctx)

	var items []models.KnowledgeItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}

	if _, err := db.Collection("knowledge_items").DeleteMany(ctx, filter); err != nil {
		return nil, fmt.Errorf("deleting knowledge items for file: %w", err)
	}
	return items, nil
}
