package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenant-rag-chatbot/internal/ai"
	"tenant-rag-chatbot/internal/chunker"
	"tenant-rag-chatbot/internal/config"
	"tenant-rag-chatbot/internal/extract"
	"tenant-rag-chatbot/internal/ingest"
	"tenant-rag-chatbot/internal/logger"
	"tenant-rag-chatbot/internal/orchestrator"
	"tenant-rag-chatbot/internal/retriever"
	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/internal/telemetry"
	"tenant-rag-chatbot/internal/tools"
	"tenant-rag-chatbot/internal/vectorindex"
	"tenant-rag-chatbot/middleware"
	"tenant-rag-chatbot/routes"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("tenant-rag-chatbot", cfg.OTLPEndpoint)
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

	// Stores share one tenant manager, which caches per-tenant databases.
	tenants := store.NewTenantManager(mongoClient)
	conversations := store.NewMongoConversationStore(tenants)
	knowledge := store.NewMongoKnowledgeStore(tenants)
	products := store.NewMongoProductStore(tenants)
	files := store.NewMongoFileStore(tenants)
	prompts := store.NewMongoPromptStore(tenants)

	embedder, err := ai.NewGeminiEmbedder(cfg, rdb)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}
	defer embedder.Close()

	provider, err := ai.NewGeminiProvider(cfg)
	if err != nil {
		log.Fatal("Failed to initialize completion provider:", err)
	}
	defer provider.Close()

	index := vectorindex.NewMongoIndex(mongoClient.Database(cfg.DBName), cfg)
	search := retriever.New(embedder, index, knowledge, products, cfg.SearchLimit, cfg.SearchMinScore)
	registry := tools.NewBuiltinRegistry(search, products, time.Duration(cfg.ToolTimeoutSecs)*time.Second)
	orch := orchestrator.New(provider, registry, conversations, prompts, cfg.MaxToolIterations, cfg.MaxHistoryTokens)

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

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Ping(ctx, nil); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "mongo": err.Error()})
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg, rdb)

	routes.SetupAuthRoutes(router, cfg, mongoClient, rdb, authMiddleware)
	routes.SetupChatRoutes(router, orch, conversations, authMiddleware)
	routes.SetupFileRoutes(router, cfg, files, queueClient, authMiddleware)
	routes.SetupKnowledgeRoutes(router, knowledge, products, search, coordinator, queueClient, authMiddleware)
	routes.SetupPromptRoutes(router, prompts, authMiddleware)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
