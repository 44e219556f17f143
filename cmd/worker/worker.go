package main

import (
	"context"
	"log"
	"time"

	"tenant-rag-chatbot/internal/ai"
	"tenant-rag-chatbot/internal/chunker"
	"tenant-rag-chatbot/internal/config"
	"tenant-rag-chatbot/internal/extract"
	"tenant-rag-chatbot/internal/ingest"
	"tenant-rag-chatbot/internal/logger"
	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/internal/telemetry"
	"tenant-rag-chatbot/internal/vectorindex"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("tenant-rag-chatbot-worker", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to initialize tracer:", err)
		}
		defer shutdown()
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	tenants := store.NewTenantManager(mongoClient)
	knowledge := store.NewMongoKnowledgeStore(tenants)
	products := store.NewMongoProductStore(tenants)
	files := store.NewMongoFileStore(tenants)

	embedder, err := ai.NewGeminiEmbedder(cfg, rdb)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}
	defer embedder.Close()

	index := vectorindex.NewMongoIndex(mongoClient.Database(cfg.DBName), cfg)

	splitter, err := chunker.New(cfg.MaxChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal("Invalid chunking config:", err)
	}
	extractor := extract.New(cfg.MaxFileSize)
	coordinator := ingest.NewCoordinator(files, knowledge, products, index, embedder, extractor, splitter)

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to build queue config:", err)
	}

	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	sweeper := ingest.NewSweeper(
		mongoClient.Database(cfg.DBName),
		files,
		queueClient,
		time.Duration(cfg.SweepIntervalMins)*time.Minute,
		time.Duration(cfg.StuckAfterMins)*time.Minute,
	)
	if err := sweeper.Start(); err != nil {
		log.Fatal("Failed to start ingestion sweeper:", err)
	}
	defer sweeper.Stop()

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 20,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(ingest.TaskIngestFile, coordinator.HandleFileTask)
	mux.HandleFunc(ingest.TaskReindexItem, coordinator.HandleReindexTask)

	logger.Info("Starting ingestion worker",
		"concurrency", 20,
		"queues", "critical(6), default(3), low(1)")

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
