package models

import "time"

// Processing status constants for uploaded files. Transitions are
// pending -> processing -> {completed, failed}, single writer per file.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ChunkError records why a single chunk failed during ingestion.
type ChunkError struct {
	ChunkIndex int    `bson:"chunk_index" json:"chunk_index"`
	Message    string `bson:"message" json:"message"`
}

// UploadedFile tracks one uploaded document through the ingestion pipeline.
// It is created at upload time and mutated only by the ingestion coordinator.
type UploadedFile struct {
	ID               string    `bson:"_id" json:"id"`
	TenantID         string    `bson:"tenant_id" json:"tenant_id"`
	UploadedByID     string    `bson:"uploaded_by_id" json:"uploaded_by_id"`
	OriginalFilename string    `bson:"original_filename" json:"original_filename"`
	FilePath         string    `bson:"file_path" json:"-"`
	FileSize         int64     `bson:"file_size" json:"file_size"`
	ContentType      string    `bson:"content_type,omitempty" json:"content_type,omitempty"`

	ProcessingStatus string       `bson:"processing_status" json:"processing_status"`
	ProcessingError  string       `bson:"processing_error,omitempty" json:"processing_error,omitempty"`
	ChunkErrors      []ChunkError `bson:"chunk_errors,omitempty" json:"chunk_errors,omitempty"`
	ProcessedAt      *time.Time   `bson:"processed_at,omitempty" json:"processed_at,omitempty"`

	// Extracted text is stored compressed; Compression names the algorithm.
	ExtractedText []byte `bson:"extracted_text,omitempty" json:"-"`
	Compression   string `bson:"compression,omitempty" json:"-"`

	KnowledgeItemsCreated int `bson:"knowledge_items_created" json:"knowledge_items_created"`
	ChunksIndexed         int `bson:"chunks_indexed" json:"chunks_indexed"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// UploadResponse is returned after a successful upload request.
type UploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}
