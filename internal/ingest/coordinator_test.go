package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"tenant-rag-chatbot/internal/chunker"
	"tenant-rag-chatbot/internal/extract"
	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/internal/vectorindex"
	"tenant-rag-chatbot/models"
)

type memFiles struct {
	store.FileStore
	mu    sync.Mutex
	files map[string]*models.UploadedFile
}

func newMemFiles() *memFiles {
	return &memFiles{files: make(map[string]*models.UploadedFile)}
}

func (s *memFiles) add(file *models.UploadedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[file.ID] = file
}

func (s *memFiles) GetByID(_ context.Context, _, fileID string) (*models.UploadedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.files[fileID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *file
	return &copied, nil
}

func (s *memFiles) TransitionStatus(_ context.Context, _, fileID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.files[fileID]
	if !ok {
		return store.ErrNotFound
	}
	if file.ProcessingStatus != from {
		return store.ErrConflict
	}
	file.ProcessingStatus = to
	return nil
}

func (s *memFiles) MarkCompleted(_ context.Context, _, fileID string, itemsCreated, chunksIndexed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file := s.files[fileID]
	file.ProcessingStatus = models.StatusCompleted
	file.ProcessingError = ""
	file.ChunkErrors = nil
	file.KnowledgeItemsCreated = itemsCreated
	file.ChunksIndexed = chunksIndexed
	return nil
}

func (s *memFiles) MarkFailed(_ context.Context, _, fileID, reason string, chunkErrors []models.ChunkError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file := s.files[fileID]
	file.ProcessingStatus = models.StatusFailed
	file.ProcessingError = reason
	file.ChunkErrors = chunkErrors
	return nil
}

func (s *memFiles) SaveExtractedText(_ context.Context, _, fileID string, compressed []byte, algorithm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file := s.files[fileID]
	file.ExtractedText = compressed
	file.Compression = algorithm
	return nil
}

type memKnowledge struct {
	store.KnowledgeStore
	mu    sync.Mutex
	items map[string]*models.KnowledgeItem
}

func newMemKnowledge() *memKnowledge {
	return &memKnowledge{items: make(map[string]*models.KnowledgeItem)}
}

func (s *memKnowledge) Create(_ context.Context, item *models.KnowledgeItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.IsActive = true
	copied := *item
	s.items[item.ID] = &copied
	return nil
}

func (s *memKnowledge) DeleteByFileID(_ context.Context, _, fileID string) ([]models.KnowledgeItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []models.KnowledgeItem
	for id, item := range s.items {
		if item.UploadedFileID == fileID {
			removed = append(removed, *item)
			delete(s.items, id)
		}
	}
	return removed, nil
}

func (s *memKnowledge) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// countingEmbedder produces deterministic vectors and can fail on demand.
type countingEmbedder struct {
	mu      sync.Mutex
	calls   int
	failFor string
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	if e.failFor != "" && strings.Contains(text, e.failFor) {
		return nil, fmt.Errorf("embedding backend rejected chunk")
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func newTestCoordinator(t *testing.T, files *memFiles, knowledge *memKnowledge, embedder *countingEmbedder, contents map[string][]byte) (*Coordinator, *vectorindex.MemoryIndex) {
	t.Helper()

	splitter, err := chunker.New(100, 20)
	if err != nil {
		t.Fatal(err)
	}

	idx := vectorindex.NewMemoryIndex()
	c := NewCoordinator(files, knowledge, nil, idx, embedder, extract.New(0), splitter)
	c.readFile = func(path string) ([]byte, error) {
		content, ok := contents[path]
		if !ok {
			return nil, fmt.Errorf("no such file: %s", path)
		}
		return content, nil
	}
	return c, idx
}

func pendingFile(id, filename, path string) *models.UploadedFile {
	return &models.UploadedFile{
		ID:               id,
		TenantID:         "acme",
		OriginalFilename: filename,
		FilePath:         path,
		ContentType:      "text/plain",
		ProcessingStatus: models.StatusPending,
		CreatedAt:        time.Now(),
	}
}

func TestProcessFileSuccess(t *testing.T) {
	files := newMemFiles()
	files.add(pendingFile("f1", "guide.txt", "/tmp/guide.txt"))
	knowledge := newMemKnowledge()
	embedder := &countingEmbedder{}

	text := strings.Repeat("Returns are accepted within 30 days of purchase. ", 10)
	c, idx := newTestCoordinator(t, files, knowledge, embedder, map[string][]byte{
		"/tmp/guide.txt": []byte(text),
	})

	if err := c.ProcessFile(context.Background(), "acme", "f1"); err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	file, _ := files.GetByID(context.Background(), "acme", "f1")
	if file.ProcessingStatus != models.StatusCompleted {
		t.Fatalf("status = %s (%s)", file.ProcessingStatus, file.ProcessingError)
	}
	if file.KnowledgeItemsCreated == 0 || file.ChunksIndexed == 0 {
		t.Errorf("counts not recorded: items=%d chunks=%d", file.KnowledgeItemsCreated, file.ChunksIndexed)
	}
	if file.KnowledgeItemsCreated != knowledge.count() {
		t.Errorf("recorded %d items, store has %d", file.KnowledgeItemsCreated, knowledge.count())
	}

	partition := vectorindex.Partition{TenantID: "acme", Kind: models.ItemKindKnowledge}
	if idx.Size(partition) != file.ChunksIndexed {
		t.Errorf("index has %d vectors, recorded %d", idx.Size(partition), file.ChunksIndexed)
	}
	if len(file.ExtractedText) == 0 || file.Compression == "" {
		t.Error("extracted text was not saved")
	}
}

func TestProcessFileSingleChunk(t *testing.T) {
	files := newMemFiles()
	files.add(pendingFile("f1", "note.txt", "/tmp/note.txt"))
	knowledge := newMemKnowledge()

	// Exactly the chunk size, should become one chunk, one item, one vector.
	text := strings.Repeat("a", 100)
	c, idx := newTestCoordinator(t, files, knowledge, &countingEmbedder{}, map[string][]byte{
		"/tmp/note.txt": []byte(text),
	})

	if err := c.ProcessFile(context.Background(), "acme", "f1"); err != nil {
		t.Fatal(err)
	}

	file, _ := files.GetByID(context.Background(), "acme", "f1")
	if file.ProcessingStatus != models.StatusCompleted {
		t.Fatalf("status = %s", file.ProcessingStatus)
	}
	if file.KnowledgeItemsCreated != 1 || file.ChunksIndexed != 1 {
		t.Errorf("items=%d chunks=%d, want 1/1", file.KnowledgeItemsCreated, file.ChunksIndexed)
	}

	partition := vectorindex.Partition{TenantID: "acme", Kind: models.ItemKindKnowledge}
	if idx.Size(partition) != 1 {
		t.Errorf("index size = %d, want 1", idx.Size(partition))
	}
}

func TestProcessFileIdempotentReingest(t *testing.T) {
	files := newMemFiles()
	files.add(pendingFile("f1", "guide.txt", "/tmp/guide.txt"))
	knowledge := newMemKnowledge()

	text := strings.Repeat("Shipping takes three to five business days. ", 10)
	c, idx := newTestCoordinator(t, files, knowledge, &countingEmbedder{}, map[string][]byte{
		"/tmp/guide.txt": []byte(text),
	})

	ctx := context.Background()
	if err := c.ProcessFile(ctx, "acme", "f1"); err != nil {
		t.Fatal(err)
	}

	partition := vectorindex.Partition{TenantID: "acme", Kind: models.ItemKindKnowledge}
	firstVectors := idx.Size(partition)
	firstItems := knowledge.count()

	// Reset to pending, as the sweeper would, and run again.
	if err := files.TransitionStatus(ctx, "acme", "f1", models.StatusCompleted, models.StatusPending); err != nil {
		t.Fatal(err)
	}
	if err := c.ProcessFile(ctx, "acme", "f1"); err != nil {
		t.Fatal(err)
	}

	if idx.Size(partition) != firstVectors {
		t.Errorf("vectors after re-ingest = %d, want %d", idx.Size(partition), firstVectors)
	}
	if knowledge.count() != firstItems {
		t.Errorf("items after re-ingest = %d, want %d", knowledge.count(), firstItems)
	}
}

func TestProcessFilePartialFailure(t *testing.T) {
	files := newMemFiles()
	files.add(pendingFile("f1", "guide.txt", "/tmp/guide.txt"))
	knowledge := newMemKnowledge()

	// The second chunk contains the poison word and fails to embed.
	text := strings.Repeat("Normal sentence about returns. ", 4) +
		"POISON content here. " +
		strings.Repeat("More normal content about shipping. ", 4)
	embedder := &countingEmbedder{failFor: "POISON"}

	c, idx := newTestCoordinator(t, files, knowledge, embedder, map[string][]byte{
		"/tmp/guide.txt": []byte(text),
	})

	err := c.ProcessFile(context.Background(), "acme", "f1")
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry on partial failure", err)
	}

	file, _ := files.GetByID(context.Background(), "acme", "f1")
	if file.ProcessingStatus != models.StatusFailed {
		t.Fatalf("status = %s, want failed", file.ProcessingStatus)
	}
	if len(file.ChunkErrors) == 0 {
		t.Fatal("no per-chunk error detail recorded")
	}

	// Successfully embedded chunks stay indexed, no rollback.
	partition := vectorindex.Partition{TenantID: "acme", Kind: models.ItemKindKnowledge}
	if idx.Size(partition) == 0 {
		t.Error("successful chunks should remain indexed")
	}
}

func TestProcessFileUnsupportedType(t *testing.T) {
	files := newMemFiles()
	file := pendingFile("f1", "movie.mp4", "/tmp/movie.mp4")
	file.ContentType = "video/mp4"
	files.add(file)

	c, _ := newTestCoordinator(t, files, newMemKnowledge(), &countingEmbedder{}, map[string][]byte{
		"/tmp/movie.mp4": []byte("not a document"),
	})

	err := c.ProcessFile(context.Background(), "acme", "f1")
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry for unsupported type", err)
	}

	got, _ := files.GetByID(context.Background(), "acme", "f1")
	if got.ProcessingStatus != models.StatusFailed {
		t.Errorf("status = %s, want failed", got.ProcessingStatus)
	}
}

func TestProcessFileSkipsClaimedFile(t *testing.T) {
	files := newMemFiles()
	file := pendingFile("f1", "guide.txt", "/tmp/guide.txt")
	file.ProcessingStatus = models.StatusProcessing
	files.add(file)

	embedder := &countingEmbedder{}
	c, _ := newTestCoordinator(t, files, newMemKnowledge(), embedder, nil)

	if err := c.ProcessFile(context.Background(), "acme", "f1"); err != nil {
		t.Fatalf("claimed file should be skipped quietly, got %v", err)
	}
	if embedder.calls != 0 {
		t.Error("skipped file must not reach the embedder")
	}
}

func TestProcessFileMissingFileRecord(t *testing.T) {
	c, _ := newTestCoordinator(t, newMemFiles(), newMemKnowledge(), &countingEmbedder{}, nil)

	if err := c.ProcessFile(context.Background(), "acme", "ghost"); err != nil {
		t.Fatalf("missing record should not error the task, got %v", err)
	}
}

func TestHandleFileTaskBadPayload(t *testing.T) {
	c, _ := newTestCoordinator(t, newMemFiles(), newMemKnowledge(), &countingEmbedder{}, nil)

	task := asynq.NewTask(TaskIngestFile, []byte("{not json"))
	if err := c.HandleFileTask(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("err = %v, want SkipRetry for bad payload", err)
	}
}
