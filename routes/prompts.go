package routes

import (
	"net/http"

	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/middleware"
	"tenant-rag-chatbot/models"
	"tenant-rag-chatbot/utils"

	"github.com/gin-gonic/gin"
)

type promptRequest struct {
	Name         string `json:"name" binding:"required"`
	SystemPrompt string `json:"system_prompt" binding:"required"`
	IsActive     bool   `json:"is_active"`
	IsDefault    bool   `json:"is_default"`
}

// Prompt management is admin-only. The orchestrator picks up the active
// prompt on the next turn; no cache invalidation is needed.
func SetupPromptRoutes(router *gin.Engine, prompts store.PromptStore, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/prompts")
	group.Use(authMiddleware.RequireAuth())
	group.Use(requireAdmin())

	group.POST("", func(c *gin.Context) {
		var req promptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		prompt := &models.Prompt{
			TenantID:     middleware.GetTenantID(c),
			Name:         req.Name,
			SystemPrompt: req.SystemPrompt,
			IsActive:     req.IsActive,
			IsDefault:    req.IsDefault,
		}
		if err := prompts.Create(c.Request.Context(), prompt); err != nil {
			utils.RespondWithInternalError(c, "Failed to create prompt", nil)
			return
		}
		c.JSON(http.StatusCreated, prompt)
	})

	group.GET("", func(c *gin.Context) {
		list, err := prompts.List(c.Request.Context(), middleware.GetTenantID(c))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list prompts", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"prompts": list, "total": len(list)})
	})

	group.PUT("/:prompt_id", func(c *gin.Context) {
		var req promptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		prompt := &models.Prompt{
			ID:           c.Param("prompt_id"),
			TenantID:     middleware.GetTenantID(c),
			Name:         req.Name,
			SystemPrompt: req.SystemPrompt,
			IsActive:     req.IsActive,
			IsDefault:    req.IsDefault,
		}
		if err := prompts.Update(c.Request.Context(), prompt); err != nil {
			respondStoreError(c, err, "Prompt not found")
			return
		}
		c.JSON(http.StatusOK, prompt)
	})

	group.DELETE("/:prompt_id", func(c *gin.Context) {
		err := prompts.Delete(c.Request.Context(), middleware.GetTenantID(c), c.Param("prompt_id"))
		if err != nil {
			respondStoreError(c, err, "Prompt not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "prompt deleted"})
	})
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if middleware.GetRole(c) != "admin" {
			utils.RespondWithForbidden(c, "Admin role required")
			c.Abort()
			return
		}
		c.Next()
	}
}
