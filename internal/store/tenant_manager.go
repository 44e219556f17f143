package store

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TenantManager hands out the isolated per-tenant database. Each tenant's
// documents live in their own database named tenant_<id>, so a query can
// never cross tenants by construction.
type TenantManager struct {
	client    *mongo.Client
	databases map[string]*mongo.Database
	mu        sync.RWMutex
}

func NewTenantManager(client *mongo.Client) *TenantManager {
	return &TenantManager{
		client:    client,
		databases: make(map[string]*mongo.Database),
	}
}

// GetTenantDB returns the tenant's database, creating its indexes on first
// access.
func (m *TenantManager) GetTenantDB(tenantID string) (*mongo.Database, error) {
	m.mu.RLock()
	if db, exists := m.databases[tenantID]; exists {
		m.mu.RUnlock()
		return db, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if db, exists := m.databases[tenantID]; exists {
		return db, nil
	}

	dbName := fmt.Sprintf("tenant_%s", tenantID)
	db := m.client.Database(dbName)

	if err := m.createTenantIndexes(db); err != nil {
		return nil, err
	}

	m.databases[tenantID] = db
	return db, nil
}

func (m *TenantManager) createTenantIndexes(db *mongo.Database) error {
	ctx := context.Background()

	_, err := db.Collection("messages").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection("conversations").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection("knowledge_items").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "vector_id", Value: 1}}},
		{Keys: bson.D{{Key: "uploaded_file_id", Value: 1}}},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection("products").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "vector_id", Value: 1}}},
		{
			Keys:    bson.D{{Key: "sku", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection("uploaded_files").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "processing_status", Value: 1}, {Key: "updated_at", Value: 1}}},
	})
	return err
}

// Client exposes the underlying connection for shutdown.
func (m *TenantManager) Client() *mongo.Client {
	return m.client
}
