package routes

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tenant-rag-chatbot/internal/config"
	"tenant-rag-chatbot/internal/extract"
	"tenant-rag-chatbot/internal/ingest"
	"tenant-rag-chatbot/internal/logger"
	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/middleware"
	"tenant-rag-chatbot/models"
	"tenant-rag-chatbot/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

func SetupFileRoutes(router *gin.Engine, cfg *config.Config, files store.FileStore, queueClient *asynq.Client, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/files")
	group.Use(authMiddleware.RequireAuth())

	// Upload accepts a document, persists it to disk, records a pending
	// file, and enqueues ingestion. Processing happens in the worker.
	group.POST("/upload", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		userID := middleware.GetUserID(c)

		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest,
				"file_too_large", "File size exceeds maximum limit", nil)
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithError(c, http.StatusBadRequest,
				"no_file", "No file provided", nil)
			return
		}
		defer file.Close()

		if header.Size > cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusBadRequest,
				"file_too_large", "File size exceeds maximum limit",
				gin.H{"max_bytes": cfg.MaxFileSize})
			return
		}

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if !isSupportedExtension(ext) {
			utils.RespondWithError(c, http.StatusBadRequest,
				"unsupported_file_type", "This file type cannot be ingested",
				gin.H{"supported": extract.SupportedExtensions()})
			return
		}

		fileID := uuid.NewString()

		uploadDir := filepath.Join(cfg.FileStorageDir, tenantID)
		if err := os.MkdirAll(uploadDir, 0755); err != nil {
			utils.RespondWithInternalError(c, "Failed to create upload directory", nil)
			return
		}

		filePath := filepath.Join(uploadDir, fmt.Sprintf("%s%s", fileID, ext))
		dst, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to open destination", nil)
			return
		}
		defer dst.Close()
		if _, err := io.Copy(dst, io.LimitReader(file, cfg.MaxFileSize)); err != nil {
			utils.RespondWithInternalError(c, "Failed to save file", nil)
			return
		}

		now := time.Now().UTC()
		record := &models.UploadedFile{
			ID:               fileID,
			TenantID:         tenantID,
			UploadedByID:     userID,
			OriginalFilename: header.Filename,
			FilePath:         filePath,
			FileSize:         header.Size,
			ContentType:      header.Header.Get("Content-Type"),
			ProcessingStatus: models.StatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := files.Create(c.Request.Context(), record); err != nil {
			os.Remove(filePath)
			utils.RespondWithInternalError(c, "Failed to create file record", nil)
			return
		}

		task, err := ingest.NewFileTask(tenantID, fileID)
		if err != nil {
			os.Remove(filePath)
			utils.RespondWithInternalError(c, "Failed to create ingestion task", nil)
			return
		}
		info, err := queueClient.EnqueueContext(c.Request.Context(), task)
		if err != nil {
			logger.Error("Failed to enqueue ingestion task", "file_id", fileID, "error", err)
			utils.RespondWithInternalError(c, "Failed to enqueue ingestion task", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"id":       fileID,
			"filename": header.Filename,
			"size":     header.Size,
			"status":   models.StatusPending,
			"task_id":  info.ID,
			"message":  "File accepted for processing",
		})
	})

	group.GET("", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		limit := intQuery(c, "limit", 20)
		offset := intQuery(c, "offset", 0)

		list, err := files.List(c.Request.Context(), tenantID, limit, offset)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list files", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"files": list,
			"total": len(list),
		})
	})

	group.GET("/:file_id/status", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		fileID := c.Param("file_id")

		record, err := files.GetByID(c.Request.Context(), tenantID, fileID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondWithNotFound(c, "File not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to retrieve file status", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"file_id":                 record.ID,
			"filename":                record.OriginalFilename,
			"status":                  record.ProcessingStatus,
			"error":                   record.ProcessingError,
			"chunk_errors":            record.ChunkErrors,
			"knowledge_items_created": record.KnowledgeItemsCreated,
			"chunks_indexed":          record.ChunksIndexed,
			"processed_at":            record.ProcessedAt,
			"created_at":              record.CreatedAt,
			"updated_at":              record.UpdatedAt,
		})
	})
}

func isSupportedExtension(ext string) bool {
	for _, supported := range extract.SupportedExtensions() {
		if ext == supported {
			return true
		}
	}
	return false
}
