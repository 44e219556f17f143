package store

import (
	"context"
	"errors"
	"time"

	"tenant-rag-chatbot/models"
)

// ErrNotFound is returned when a lookup matches no document in the tenant's
// database.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update loses to a concurrent
// writer, for example a file status transition that another worker already
// made.
var ErrConflict = errors.New("conflicting update")

// ConversationStore persists conversations and their messages. Messages are
// append-only; edits and deletes operate on whole conversations.
type ConversationStore interface {
	CreateConversation(ctx context.Context, tenantID, userID, title string) (*models.Conversation, error)
	GetConversation(ctx context.Context, tenantID, conversationID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, tenantID, userID string, limit int) ([]models.Conversation, error)
	DeleteConversation(ctx context.Context, tenantID, conversationID string) error

	AppendMessage(ctx context.Context, tenantID string, msg *models.Message) error
	ListMessages(ctx context.Context, tenantID, conversationID string) ([]models.Message, error)
}

// KnowledgeStore persists knowledge base items for retrieval.
type KnowledgeStore interface {
	Create(ctx context.Context, item *models.KnowledgeItem) error
	Update(ctx context.Context, item *models.KnowledgeItem) error
	Delete(ctx context.Context, tenantID, itemID string) error
	GetByID(ctx context.Context, tenantID, itemID string) (*models.KnowledgeItem, error)
	GetByVectorIDs(ctx context.Context, tenantID string, vectorIDs []string) ([]models.KnowledgeItem, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]models.KnowledgeItem, error)
	DeleteByFileID(ctx context.Context, tenantID, fileID string) ([]models.KnowledgeItem, error)
}

// ProductStore persists catalog products.
type ProductStore interface {
	Create(ctx context.Context, item *models.ProductItem) error
	Update(ctx context.Context, item *models.ProductItem) error
	Delete(ctx context.Context, tenantID, productID string) error
	GetByID(ctx context.Context, tenantID, productID string) (*models.ProductItem, error)
	GetByVectorIDs(ctx context.Context, tenantID string, vectorIDs []string) ([]models.ProductItem, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]models.ProductItem, error)
}

// FileStore persists uploaded file records and their processing lifecycle.
type FileStore interface {
	Create(ctx context.Context, file *models.UploadedFile) error
	GetByID(ctx context.Context, tenantID, fileID string) (*models.UploadedFile, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]models.UploadedFile, error)

	// TransitionStatus moves a file from one processing status to another.
	// The update applies only if the file is still in the from status, so
	// concurrent workers cannot both claim a file. Returns ErrConflict when
	// the transition lost.
	TransitionStatus(ctx context.Context, tenantID, fileID, from, to string) error
	MarkCompleted(ctx context.Context, tenantID, fileID string, itemsCreated, chunksIndexed int) error
	MarkFailed(ctx context.Context, tenantID, fileID, reason string, chunkErrors []models.ChunkError) error
	SaveExtractedText(ctx context.Context, tenantID, fileID string, compressed []byte, algorithm string) error

	// ListStuck returns files that entered processing before the cutoff and
	// never finished, for the requeue sweeper.
	ListStuck(ctx context.Context, tenantID string, cutoff time.Time) ([]models.UploadedFile, error)
}

// PromptStore persists tenant system prompts.
type PromptStore interface {
	Create(ctx context.Context, prompt *models.Prompt) error
	Update(ctx context.Context, prompt *models.Prompt) error
	Delete(ctx context.Context, tenantID, promptID string) error
	List(ctx context.Context, tenantID string) ([]models.Prompt, error)
	// GetActive returns the tenant's active system prompt, or ErrNotFound
	// when none is configured.
	GetActive(ctx context.Context, tenantID string) (*models.Prompt, error)
}
