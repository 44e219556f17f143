package ingest

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"tenant-rag-chatbot/internal/logger"
	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/models"
)

// Sweeper periodically requeues files stuck in processing, which happens
// when a worker dies mid-ingestion. Stuck files are reset to pending and a
// fresh task is enqueued; the deterministic chunk identities make the rerun
// safe.
type Sweeper struct {
	sharedDB  *mongo.Database
	files     store.FileStore
	client    *asynq.Client
	scheduler *gocron.Scheduler

	interval   time.Duration
	stuckAfter time.Duration
}

func NewSweeper(sharedDB *mongo.Database, files store.FileStore, client *asynq.Client, interval, stuckAfter time.Duration) *Sweeper {
	return &Sweeper{
		sharedDB:   sharedDB,
		files:      files,
		client:     client,
		scheduler:  gocron.NewScheduler(time.UTC),
		interval:   interval,
		stuckAfter: stuckAfter,
	}
}

// Start schedules the sweep and runs the scheduler in the background.
func (s *Sweeper) Start() error {
	_, err := s.scheduler.Every(s.interval).Tag("ingest-sweep").Do(func() {
		if err := s.Sweep(context.Background()); err != nil {
			logger.Error("Ingest sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

// Sweep scans every active tenant for stuck files and requeues them.
func (s *Sweeper) Sweep(ctx context.Context) error {
	tenantIDs, err := s.activeTenants(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-s.stuckAfter)
	for _, tenantID := range tenantIDs {
		stuck, err := s.files.ListStuck(ctx, tenantID, cutoff)
		if err != nil {
			logger.Error("Failed to list stuck files", "tenant_id", tenantID, "error", err)
			continue
		}

		for _, file := range stuck {
			if err := s.requeue(ctx, tenantID, file.ID); err != nil {
				logger.Error("Failed to requeue stuck file",
					"tenant_id", tenantID, "file_id", file.ID, "error", err)
			}
		}
	}
	return nil
}

func (s *Sweeper) requeue(ctx context.Context, tenantID, fileID string) error {
	err := s.files.TransitionStatus(ctx, tenantID, fileID, models.StatusProcessing, models.StatusPending)
	if err != nil {
		return err
	}

	task, err := NewFileTask(tenantID, fileID)
	if err != nil {
		return err
	}
	if _, err := s.client.EnqueueContext(ctx, task); err != nil {
		return err
	}

	logger.Info("Requeued stuck file", "tenant_id", tenantID, "file_id", fileID)
	return nil
}

func (s *Sweeper) activeTenants(ctx context.Context) ([]string, error) {
	cursor, err := s.sharedDB.Collection("tenants").Find(ctx, bson.M{"is_active": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var tenant struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&tenant); err != nil {
			continue
		}
		ids = append(ids, tenant.ID)
	}
	return ids, cursor.Err()
}
