package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/hibiken/asynq"

	"tenant-rag-chatbot/internal/ai"
	"tenant-rag-chatbot/internal/chunker"
	"tenant-rag-chatbot/internal/extract"
	"tenant-rag-chatbot/internal/logger"
	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/internal/vectorindex"
	"tenant-rag-chatbot/models"
	"tenant-rag-chatbot/utils"
)

// Coordinator turns uploaded files into indexed knowledge chunks. One task
// handles one file end to end: extract, chunk, embed, upsert. Chunk
// identities are deterministic, so reprocessing a file overwrites its old
// vectors instead of duplicating them.
type Coordinator struct {
	files     store.FileStore
	knowledge store.KnowledgeStore
	products  store.ProductStore
	index     vectorindex.Index
	embedder  ai.Embedder
	extractor *extract.Extractor
	splitter  *chunker.Splitter

	readFile func(string) ([]byte, error)
}

func NewCoordinator(files store.FileStore, knowledge store.KnowledgeStore, products store.ProductStore, index vectorindex.Index, embedder ai.Embedder, extractor *extract.Extractor, splitter *chunker.Splitter) *Coordinator {
	return &Coordinator{
		files:     files,
		knowledge: knowledge,
		products:  products,
		index:     index,
		embedder:  embedder,
		extractor: extractor,
		splitter:  splitter,
		readFile:  os.ReadFile,
	}
}

// HandleFileTask is the asynq handler for TaskIngestFile.
func (c *Coordinator) HandleFileTask(ctx context.Context, t *asynq.Task) error {
	var payload FilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	return c.ProcessFile(ctx, payload.TenantID, payload.FileID)
}

// ProcessFile runs the ingestion pipeline for one uploaded file. Chunk
// failures are collected rather than aborting: successfully indexed chunks
// stay indexed and the file is marked failed with per-chunk detail.
func (c *Coordinator) ProcessFile(ctx context.Context, tenantID, fileID string) error {
	file, err := c.files.GetByID(ctx, tenantID, fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("Ingest task for missing file", "tenant_id", tenantID, "file_id", fileID)
			return nil
		}
		return err
	}

	err = c.files.TransitionStatus(ctx, tenantID, fileID, models.StatusPending, models.StatusProcessing)
	if errors.Is(err, store.ErrConflict) {
		// Another worker owns the file, or it already finished.
		logger.Info("Skipping file claimed by another worker", "tenant_id", tenantID, "file_id", fileID)
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("Processing uploaded file", "tenant_id", tenantID, "file_id", fileID, "filename", file.OriginalFilename)

	content, err := c.readFile(file.FilePath)
	if err != nil {
		c.fail(ctx, tenantID, fileID, fmt.Sprintf("reading file: %v", err), nil)
		return fmt.Errorf("reading %s: %w", file.FilePath, err)
	}

	extracted, err := c.extractor.Extract(file.OriginalFilename, file.ContentType, content)
	if err != nil {
		c.fail(ctx, tenantID, fileID, err.Error(), nil)
		if errors.Is(err, extract.ErrUnsupportedType) || errors.Is(err, extract.ErrExtraction) {
			return fmt.Errorf("extraction failed: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	c.saveExtractedText(ctx, tenantID, fileID, extracted.Text)

	chunks := c.splitter.Split(extracted.Text)
	if len(chunks) == 0 {
		c.fail(ctx, tenantID, fileID, "document produced no chunks", nil)
		return fmt.Errorf("no chunks produced: %w", asynq.SkipRetry)
	}

	// Drop items from any previous run of this file so re-ingestion cannot
	// leave stale records behind.
	if _, err := c.knowledge.DeleteByFileID(ctx, tenantID, fileID); err != nil {
		c.fail(ctx, tenantID, fileID, fmt.Sprintf("clearing previous items: %v", err), nil)
		return err
	}

	var entries []vectorindex.Entry
	var items []*models.KnowledgeItem
	var chunkErrors []models.ChunkError

	for _, chunk := range chunks {
		vector, err := c.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			chunkErrors = append(chunkErrors, models.ChunkError{
				ChunkIndex: chunk.Index,
				Message:    fmt.Sprintf("embedding: %v", err),
			})
			continue
		}

		vectorID := utils.ChunkIdentity(tenantID, fileID, chunk.Index)
		entries = append(entries, vectorindex.Entry{
			ID:     vectorID,
			Vector: vector,
			Metadata: map[string]string{
				"file_id":     fileID,
				"chunk_index": fmt.Sprintf("%d", chunk.Index),
			},
		})
		items = append(items, &models.KnowledgeItem{
			TenantID:       tenantID,
			Title:          fmt.Sprintf("%s (part %d)", file.OriginalFilename, chunk.Index+1),
			Content:        chunk.Text,
			Source:         file.OriginalFilename,
			DocumentType:   file.ContentType,
			VectorID:       vectorID,
			UploadedFileID: fileID,
		})
	}

	if len(entries) > 0 {
		partition := vectorindex.Partition{TenantID: tenantID, Kind: models.ItemKindKnowledge}
		if err := c.index.Upsert(ctx, partition, entries); err != nil {
			c.fail(ctx, tenantID, fileID, fmt.Sprintf("indexing vectors: %v", err), chunkErrors)
			return err
		}
	}

	created := 0
	for _, item := range items {
		if err := c.knowledge.Create(ctx, item); err != nil {
			chunkErrors = append(chunkErrors, models.ChunkError{
				Message: fmt.Sprintf("storing item %s: %v", item.VectorID, err),
			})
			continue
		}
		created++
	}

	if len(chunkErrors) > 0 {
		c.fail(ctx, tenantID, fileID,
			fmt.Sprintf("%d of %d chunks failed", len(chunkErrors), len(chunks)), chunkErrors)
		return fmt.Errorf("ingestion incomplete for file %s: %w", fileID, asynq.SkipRetry)
	}

	if err := c.files.MarkCompleted(ctx, tenantID, fileID, created, len(entries)); err != nil {
		return err
	}

	logger.Info("File ingested", "tenant_id", tenantID, "file_id", fileID,
		"items_created", created, "chunks_indexed", len(entries))
	return nil
}

// HandleReindexTask is the asynq handler for TaskReindexItem. It re-embeds
// one edited knowledge item or product.
func (c *Coordinator) HandleReindexTask(ctx context.Context, t *asynq.Task) error {
	var payload ReindexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	switch payload.Kind {
	case models.ItemKindKnowledge:
		return c.reindexKnowledge(ctx, payload.TenantID, payload.ItemID)
	case models.ItemKindProduct:
		return c.reindexProduct(ctx, payload.TenantID, payload.ItemID)
	default:
		return fmt.Errorf("unknown item kind %q: %w", payload.Kind, asynq.SkipRetry)
	}
}

func (c *Coordinator) reindexKnowledge(ctx context.Context, tenantID, itemID string) error {
	item, err := c.knowledge.GetByID(ctx, tenantID, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	vector, err := c.embedder.Embed(ctx, item.Title+"\n"+item.Content)
	if err != nil {
		return err
	}

	if item.VectorID == "" {
		item.VectorID = utils.ChunkIdentity(tenantID, item.ID, 0)
	}

	partition := vectorindex.Partition{TenantID: tenantID, Kind: models.ItemKindKnowledge}
	if err := c.index.Upsert(ctx, partition, []vectorindex.Entry{{
		ID:       item.VectorID,
		Vector:   vector,
		Metadata: map[string]string{"item_id": item.ID},
	}}); err != nil {
		return err
	}
	return c.knowledge.Update(ctx, item)
}

func (c *Coordinator) reindexProduct(ctx context.Context, tenantID, productID string) error {
	product, err := c.products.GetByID(ctx, tenantID, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	text := fmt.Sprintf("%s\n%s\nCategory: %s", product.Name, product.Description, product.Category)
	vector, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	if product.VectorID == "" {
		product.VectorID = utils.ChunkIdentity(tenantID, product.ID, 0)
	}

	partition := vectorindex.Partition{TenantID: tenantID, Kind: models.ItemKindProduct}
	if err := c.index.Upsert(ctx, partition, []vectorindex.Entry{{
		ID:       product.VectorID,
		Vector:   vector,
		Metadata: map[string]string{"product_id": product.ID},
	}}); err != nil {
		return err
	}
	return c.products.Update(ctx, product)
}

// RemoveItemVector drops one item's vector after a delete.
func (c *Coordinator) RemoveItemVector(ctx context.Context, tenantID, kind, vectorID string) error {
	if vectorID == "" {
		return nil
	}
	partition := vectorindex.Partition{TenantID: tenantID, Kind: kind}
	return c.index.Delete(ctx, partition, []string{vectorID})
}

func (c *Coordinator) fail(ctx context.Context, tenantID, fileID, reason string, chunkErrors []models.ChunkError) {
	if err := c.files.MarkFailed(ctx, tenantID, fileID, reason, chunkErrors); err != nil {
		logger.Error("Failed to mark file as failed", "tenant_id", tenantID, "file_id", fileID, "error", err)
	}
}

func (c *Coordinator) saveExtractedText(ctx context.Context, tenantID, fileID, text string) {
	compressed, algorithm, err := utils.CompressText(text)
	if err != nil {
		logger.Warn("Failed to compress extracted text", "file_id", fileID, "error", err)
		return
	}
	if err := c.files.SaveExtractedText(ctx, tenantID, fileID, compressed, string(algorithm)); err != nil {
		logger.Warn("Failed to save extracted text", "file_id", fileID, "error", err)
	}
}
