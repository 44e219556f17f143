package ingest

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskIngestFile  = "ingest:file"
	TaskReindexItem = "ingest:reindex"
)

type FilePayload struct {
	TenantID string `json:"tenant_id"`
	FileID   string `json:"file_id"`
}

type ReindexPayload struct {
	TenantID string `json:"tenant_id"`
	Kind     string `json:"kind"`
	ItemID   string `json:"item_id"`
}

// NewFileTask enqueues processing of one uploaded file.
func NewFileTask(tenantID, fileID string) (*asynq.Task, error) {
	payload, err := json.Marshal(FilePayload{TenantID: tenantID, FileID: fileID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestFile,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// NewReindexTask enqueues re-embedding of one knowledge item or product
// after an edit.
func NewReindexTask(tenantID, kind, itemID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ReindexPayload{TenantID: tenantID, Kind: kind, ItemID: itemID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskReindexItem,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
		asynq.Queue("default"),
	), nil
}
