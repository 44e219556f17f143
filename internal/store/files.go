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

// MongoFileStore keeps uploaded file records in the tenant's database.
type MongoFileStore struct {
	tenants *TenantManager
}

func NewMongoFileStore(tenants *TenantManager) *MongoFileStore {
	return &MongoFileStore{tenants: tenants}
}

func (s *MongoFileStore) Create(ctx context.Context, file *models.UploadedFile) error {
	db, err := s.tenants.GetTenantDB(file.TenantID)
	if err != nil {
		return err
	}

	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	file.CreatedAt = now
	file.UpdatedAt = now
	if file.ProcessingStatus == "" {
		file.ProcessingStatus = models.StatusPending
	}

	if _, err := db.Collection("uploaded_files").InsertOne(ctx, file); err != nil {
		return fmt.Errorf("creating uploaded file record: %w", err)
	}
	return nil
}

func (s *MongoFileStore) GetByID(ctx context.Context, tenantID, fileID string) (*models.UploadedFile, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	var file models.UploadedFile
	err = db.Collection("uploaded_files").FindOne(ctx, bson.M{"_id": fileID}).Decode(&file)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching uploaded file: %w", err)
	}
	return &file, nil
}

func (s *MongoFileStore) List(ctx context.Context, tenantID string, limit, offset int) ([]models.UploadedFile, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := db.Collection("uploaded_files").Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing uploaded files: %w", err)
	}
	defer cursor.Close(ctx)

	var files []models.UploadedFile
	if err := cursor.All(ctx, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// TransitionStatus is a compare-and-set on processing_status. Only one
// worker can win the pending to processing transition for a given file.
func (s *MongoFileStore) TransitionStatus(ctx context.Context, tenantID, fileID, from, to string) error {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return err
	}

	result, err := db.Collection("uploaded_files").UpdateOne(ctx,
		bson.M{"_id": fileID, "processing_status": from},
		bson.M{"$set": bson.M{
			"processing_status": to,
			"updated_at":        time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("transitioning file status: %w", err)
	}
	if result.MatchedCount == 0 {
		// Either the file is gone or another worker changed the status.
		if _, lookupErr := s.GetByID(ctx, tenantID, fileID); errors.Is(lookupErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *MongoFileStore) MarkCompleted(ctx context.Context, tenantID, fileID string, itemsCreated, chunksIndexed int) error {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := db.Collection("uploaded_files").UpdateOne(ctx,
		bson.M{"_id": fileID},
		bson.M{"$set": bson.M{
			"processing_status":       models.StatusCompleted,
			"processing_error":        "",
			"chunk_errors":            nil,
			"knowledge_items_created": itemsCreated,
			"chunks_indexed":          chunksIndexed,
			"processed_at":            now,
			"updated_at":              now,
		}},
	)
	if err != nil {
		return fmt.Errorf("marking file completed: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoFileStore) MarkFailed(ctx context.Context, tenantID, fileID, reason string, chunkErrors []models.ChunkError) error {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := db.Collection("uploaded_files").UpdateOne(ctx,
		bson.M{"_id": fileID},
		bson.M{"$set": bson.M{
			"processing_status": models.StatusFailed,
			"processing_error":  reason,
			"chunk_errors":      chunkErrors,
			"processed_at":      now,
			"updated_at":        now,
		}},
	)
	if err != nil {
		return fmt.Errorf("marking file failed: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoFileStore) SaveExtractedText(ctx context.Context, tenantID, fileID string, compressed []byte, algorithm string) error {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return err
	}

	result, err := db.Collection("uploaded_files").UpdateOne(ctx,
		bson.M{"_id": fileID},
		bson.M{"$set": bson.M{
			"extracted_text": compressed,
			"compression":    algorithm,
			"updated_at":     time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("saving extracted text: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoFileStore) ListStuck(ctx context.Context, tenantID string, cutoff time.Time) ([]models.UploadedFile, error) {
	db, err := s.tenants.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}

	cursor, err := db.Collection("uploaded_files").Find(ctx, bson.M{
		"processing_status": models.StatusProcessing,
		"updated_at":        bson.M{"$lt": cutoff},
	})
	if err != nil {
		return nil, fmt.Errorf("listing stuck files: %w", err)
	}
	defer cursor.Close(ctx)

	var files []models.UploadedFile
	if err := cursor.All(ctx, &files); err != nil {
		return nil, err
	}
	return files, nil
}
