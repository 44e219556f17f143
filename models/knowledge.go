package models

import "time"

// KnowledgeItem is an indexable unit of tenant knowledge. VectorID is empty
// until the item has been embedded and upserted into the vector index.
type KnowledgeItem struct {
	ID             string            `bson:"_id" json:"id"`
	TenantID       string            `bson:"tenant_id" json:"tenant_id"`
	Title          string            `bson:"title" json:"title"`
	Content        string            `bson:"content" json:"content"`
	Source         string            `bson:"source,omitempty" json:"source,omitempty"`
	DocumentType   string            `bson:"document_type,omitempty" json:"document_type,omitempty"`
	Metadata       map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	IsActive       bool              `bson:"is_active" json:"is_active"`
	VectorID       string            `bson:"vector_id,omitempty" json:"vector_id,omitempty"`
	UploadedFileID string            `bson:"uploaded_file_id,omitempty" json:"uploaded_file_id,omitempty"`
	CreatedAt      time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `bson:"updated_at" json:"updated_at"`
}

// ProductItem is the product-catalog counterpart of KnowledgeItem.
type ProductItem struct {
	ID            string            `bson:"_id" json:"id"`
	TenantID      string            `bson:"tenant_id" json:"tenant_id"`
	Name          string            `bson:"name" json:"name"`
	Description   string            `bson:"description,omitempty" json:"description,omitempty"`
	Category      string            `bson:"category,omitempty" json:"category,omitempty"`
	Price         float64           `bson:"price" json:"price"`
	Currency      string            `bson:"currency" json:"currency"`
	SKU           string            `bson:"sku,omitempty" json:"sku,omitempty"`
	StockQuantity int               `bson:"stock_quantity" json:"stock_quantity"`
	Metadata      map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	IsActive      bool              `bson:"is_active" json:"is_active"`
	VectorID      string            `bson:"vector_id,omitempty" json:"vector_id,omitempty"`
	CreatedAt     time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `bson:"updated_at" json:"updated_at"`
}

// ItemKind tags which catalog a vector belongs to.
const (
	ItemKindKnowledge = "knowledge"
	ItemKindProduct   = "products"
)
