package routes

import (
	"errors"
	"net/http"
	"time"

	"tenant-rag-chatbot/internal/ingest"
	"tenant-rag-chatbot/internal/logger"
	"tenant-rag-chatbot/internal/retriever"
	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/middleware"
	"tenant-rag-chatbot/models"
	"tenant-rag-chatbot/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

type knowledgeRequest struct {
	Title        string            `json:"title" binding:"required"`
	Content      string            `json:"content" binding:"required"`
	Source       string            `json:"source,omitempty"`
	DocumentType string            `json:"document_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	IsActive     *bool             `json:"is_active,omitempty"`
}

type productRequest struct {
	Name          string            `json:"name" binding:"required"`
	Description   string            `json:"description,omitempty"`
	Category      string            `json:"category,omitempty"`
	Price         float64           `json:"price"`
	Currency      string            `json:"currency,omitempty"`
	SKU           string            `json:"sku,omitempty"`
	StockQuantity int               `json:"stock_quantity"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	IsActive      *bool             `json:"is_active,omitempty"`
}

func SetupKnowledgeRoutes(router *gin.Engine, knowledge store.KnowledgeStore, products store.ProductStore, search *retriever.Retriever, coordinator *ingest.Coordinator, queueClient *asynq.Client, authMiddleware *middleware.AuthMiddleware) {
	kb := router.Group("/knowledge")
	kb.Use(authMiddleware.RequireAuth())

	kb.POST("", func(c *gin.Context) {
		var req knowledgeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		tenantID := middleware.GetTenantID(c)
		item := &models.KnowledgeItem{
			TenantID:     tenantID,
			Title:        req.Title,
			Content:      req.Content,
			Source:       req.Source,
			DocumentType: req.DocumentType,
			Metadata:     req.Metadata,
		}
		if err := knowledge.Create(c.Request.Context(), item); err != nil {
			utils.RespondWithInternalError(c, "Failed to create knowledge item", nil)
			return
		}

		enqueueReindex(c, queueClient, tenantID, models.ItemKindKnowledge, item.ID)
		c.JSON(http.StatusCreated, item)
	})

	kb.GET("", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		limit := intQuery(c, "limit", 20)
		offset := intQuery(c, "offset", 0)

		list, err := knowledge.List(c.Request.Context(), tenantID, limit, offset)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list knowledge items", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": list, "total": len(list)})
	})

	kb.GET("/search", func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			utils.RespondWithBadRequest(c, "Query parameter q is required", nil)
			return
		}

		tenantID := middleware.GetTenantID(c)
		limit := intQuery(c, "limit", 0)

		results, err := search.SearchKnowledge(c.Request.Context(), tenantID, query, limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Search failed", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
	})

	kb.GET("/:item_id", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		item, err := knowledge.GetByID(c.Request.Context(), tenantID, c.Param("item_id"))
		if err != nil {
			respondStoreError(c, err, "Knowledge item not found")
			return
		}
		c.JSON(http.StatusOK, item)
	})

	kb.PUT("/:item_id", func(c *gin.Context) {
		var req knowledgeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		tenantID := middleware.GetTenantID(c)
		item, err := knowledge.GetByID(c.Request.Context(), tenantID, c.Param("item_id"))
		if err != nil {
			respondStoreError(c, err, "Knowledge item not found")
			return
		}

		item.Title = req.Title
		item.Content = req.Content
		item.Source = req.Source
		item.DocumentType = req.DocumentType
		item.Metadata = req.Metadata
		if req.IsActive != nil {
			item.IsActive = *req.IsActive
		}
		item.UpdatedAt = time.Now().UTC()

		if err := knowledge.Update(c.Request.Context(), item); err != nil {
			respondStoreError(c, err, "Knowledge item not found")
			return
		}

		enqueueReindex(c, queueClient, tenantID, models.ItemKindKnowledge, item.ID)
		c.JSON(http.StatusOK, item)
	})

	kb.DELETE("/:item_id", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		itemID := c.Param("item_id")

		item, err := knowledge.GetByID(c.Request.Context(), tenantID, itemID)
		if err != nil {
			respondStoreError(c, err, "Knowledge item not found")
			return
		}

		if err := knowledge.Delete(c.Request.Context(), tenantID, itemID); err != nil {
			respondStoreError(c, err, "Knowledge item not found")
			return
		}

		if item.VectorID != "" {
			if err := coordinator.RemoveItemVector(c.Request.Context(), tenantID, models.ItemKindKnowledge, item.VectorID); err != nil {
				logger.Warn("Failed to remove vector for deleted item", "item_id", itemID, "error", err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"message": "knowledge item deleted"})
	})

	prod := router.Group("/products")
	prod.Use(authMiddleware.RequireAuth())

	prod.POST("", func(c *gin.Context) {
		var req productRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		tenantID := middleware.GetTenantID(c)
		item := &models.ProductItem{
			TenantID:      tenantID,
			Name:          req.Name,
			Description:   req.Description,
			Category:      req.Category,
			Price:         req.Price,
			Currency:      req.Currency,
			SKU:           req.SKU,
			StockQuantity: req.StockQuantity,
			Metadata:      req.Metadata,
		}
		if err := products.Create(c.Request.Context(), item); err != nil {
			utils.RespondWithInternalError(c, "Failed to create product", nil)
			return
		}

		enqueueReindex(c, queueClient, tenantID, models.ItemKindProduct, item.ID)
		c.JSON(http.StatusCreated, item)
	})

	prod.GET("", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		limit := intQuery(c, "limit", 20)
		offset := intQuery(c, "offset", 0)

		list, err := products.List(c.Request.Context(), tenantID, limit, offset)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list products", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"products": list, "total": len(list)})
	})

	prod.GET("/search", func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			utils.RespondWithBadRequest(c, "Query parameter q is required", nil)
			return
		}

		tenantID := middleware.GetTenantID(c)
		limit := intQuery(c, "limit", 0)

		results, err := search.SearchProducts(c.Request.Context(), tenantID, query, limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Search failed", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
	})

	prod.GET("/:product_id", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		item, err := products.GetByID(c.Request.Context(), tenantID, c.Param("product_id"))
		if err != nil {
			respondStoreError(c, err, "Product not found")
			return
		}
		c.JSON(http.StatusOK, item)
	})

	prod.PUT("/:product_id", func(c *gin.Context) {
		var req productRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		tenantID := middleware.GetTenantID(c)
		item, err := products.GetByID(c.Request.Context(), tenantID, c.Param("product_id"))
		if err != nil {
			respondStoreError(c, err, "Product not found")
			return
		}

		item.Name = req.Name
		item.Description = req.Description
		item.Category = req.Category
		item.Price = req.Price
		item.Currency = req.Currency
		item.SKU = req.SKU
		item.StockQuantity = req.StockQuantity
		item.Metadata = req.Metadata
		if req.IsActive != nil {
			item.IsActive = *req.IsActive
		}
		item.UpdatedAt = time.Now().UTC()

		if err := products.Update(c.Request.Context(), item); err != nil {
			respondStoreError(c, err, "Product not found")
			return
		}

		enqueueReindex(c, queueClient, tenantID, models.ItemKindProduct, item.ID)
		c.JSON(http.StatusOK, item)
	})

	prod.DELETE("/:product_id", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		productID := c.Param("product_id")

		item, err := products.GetByID(c.Request.Context(), tenantID, productID)
		if err != nil {
			respondStoreError(c, err, "Product not found")
			return
		}

		if err := products.Delete(c.Request.Context(), tenantID, productID); err != nil {
			respondStoreError(c, err, "Product not found")
			return
		}

		if item.VectorID != "" {
			if err := coordinator.RemoveItemVector(c.Request.Context(), tenantID, models.ItemKindProduct, item.VectorID); err != nil {
				logger.Warn("Failed to remove vector for deleted product", "product_id", productID, "error", err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
	})
}

func enqueueReindex(c *gin.Context, queueClient *asynq.Client, tenantID, kind, itemID string) {
	task, err := ingest.NewReindexTask(tenantID, kind, itemID)
	if err != nil {
		logger.Error("Failed to build reindex task", "kind", kind, "item_id", itemID, "error", err)
		return
	}
	if _, err := queueClient.EnqueueContext(c.Request.Context(), task); err != nil {
		logger.Error("Failed to enqueue reindex task", "kind", kind, "item_id", itemID, "error", err)
	}
}

func respondStoreError(c *gin.Context, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithNotFound(c, notFoundMsg)
		return
	}
	utils.RespondWithInternalError(c, "Storage operation failed", nil)
}
