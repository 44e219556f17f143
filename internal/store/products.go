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

// MongoProductStore keeps catalog products in the tenant's database.
type MongoProductStore struct {
	tenants *TenantManager
}

func NewMongoProductStore(tenants *TenantManager) *MongoProductStore {
	return &MongoProductStore{tenants: tenants}
}

func (s *MongoProductStore) Create(ctx context.Context, item *models.ProductItem) error {
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

	if _, err := db.Collection("products").InsertOne(ctx, item); err != nil {
		return fmt.Errorf("creating product: %w", err)
	}
	return nil
}

func (s *MongoProductStore) Update(ctx context.Context, item *models.ProductItem) error {
	db, err := s.tenants.GetTenantDB(item.TenantID)
	if err != nil {
		return err
	}

	item.UpdatedAt = time.Now().UTC()
	result, err := db.Collection("products").ReplaceOne(ctx, bson.M{"_id": item.ID}, item)
	if err != nil {
		return fmt.Errorf("updating product: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoProductStore) Delete(ctx context.Context, tenantID, productID string) error {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return err
	}

	result, err := db.Collection("products").DeleteOne(ctx, bson.M{"_id": productID})
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoProductStore) GetByID(ctx context.Context, tenantID, productID string) (*models.ProductItem, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	var item models.ProductItem
	err = db.Collection("products").FindOne(ctx, bson.M{"_id": productID}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching product: %w", err)
	}
	return &item, nil
}

func (s *MongoProductStore) GetByVectorIDs(ctx context.Context, tenantID string, vectorIDs []string) ([]models.ProductItem, error) {
	if len(vectorIDs) == 0 {
		return nil, nil
	}

	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	cursor, err := db.Collection("products").Find(ctx, bson.M{"vector_id": bson.M{"$in": vectorIDs}})
	if err != nil {
		return nil, fmt.Errorf("fetching products by vector id: %w", err)
	}
	defer cursor.Close(ctx)

	var items []models.ProductItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *MongoProductStore) List(ctx context.Context, tenantID string, limit, offset int) ([]models.ProductItem, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := db.Collection("products").Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer cursor.Close(ctx)

	var items []models.ProductItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}
