package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"tenant-rag-chatbot/internal/logger"
	"tenant-rag-chatbot/internal/orchestrator"
	"tenant-rag-chatbot/internal/store"
	"tenant-rag-chatbot/middleware"
	"tenant-rag-chatbot/models"
	"tenant-rag-chatbot/utils"

	"github.com/gin-gonic/gin"
)

func SetupChatRoutes(router *gin.Engine, orch *orchestrator.Orchestrator, conversations store.ConversationStore, authMiddleware *middleware.AuthMiddleware) {
	chat := router.Group("/chat")
	chat.Use(authMiddleware.RequireAuth())

	// Non-streaming turn. The reply is returned in one response once the
	// tool loop finishes.
	chat.POST("/send", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		tenantID := middleware.GetTenantID(c)
		userID := middleware.GetUserID(c)

		resp, err := orch.RunTurnSync(c.Request.Context(), tenantID, userID, req.ConversationID, req.Message)
		if err != nil {
			respondTurnError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	})

	// Streaming turn over SSE. Events mirror the orchestrator's event
	// types: conversation_id, content, tool_calls, warning, done, error.
	chat.POST("/stream", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		tenantID := middleware.GetTenantID(c)
		userID := middleware.GetUserID(c)

		events, err := orch.RunTurn(c.Request.Context(), tenantID, userID, req.ConversationID, req.Message)
		if err != nil {
			respondTurnError(c, err)
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		for event := range events {
			sendSSE(c, event)
		}
	})

	chat.GET("/conversations", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		userID := middleware.GetUserID(c)
		limit := intQuery(c, "limit", 50)

		list, err := conversations.ListConversations(c.Request.Context(), tenantID, userID, limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list conversations", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"conversations": list,
			"total":         len(list),
		})
	})

	chat.GET("/conversations/:conversation_id/messages", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		conversationID := c.Param("conversation_id")

		conv, err := ownedConversation(c.Request.Context(), conversations, tenantID, middleware.GetUserID(c), conversationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondWithNotFound(c, "Conversation not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load conversation", nil)
			return
		}

		messages, err := conversations.ListMessages(c.Request.Context(), tenantID, conversationID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load messages", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"conversation": conv,
			"messages":     messages,
			"total":        len(messages),
		})
	})

	chat.DELETE("/conversations/:conversation_id", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		conversationID := c.Param("conversation_id")

		if _, err := ownedConversation(c.Request.Context(), conversations, tenantID, middleware.GetUserID(c), conversationID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondWithNotFound(c, "Conversation not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load conversation", nil)
			return
		}

		err := conversations.DeleteConversation(c.Request.Context(), tenantID, conversationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondWithNotFound(c, "Conversation not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to delete conversation", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "conversation deleted"})
	})
}

// ownedConversation loads a conversation and hides it from everyone but its
// owner. Non-owners get store.ErrNotFound so existence is not leaked.
func ownedConversation(ctx context.Context, conversations store.ConversationStore, tenantID, userID, conversationID string) (*models.Conversation, error) {
	conv, err := conversations.GetConversation(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

func sendSSE(c *gin.Context, event orchestrator.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal stream event", "type", string(event.Type), "error", err)
		return
	}
	c.SSEvent(string(event.Type), string(data))
	c.Writer.Flush()
}

func respondTurnError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithNotFound(c, "Conversation not found")
		return
	}
	utils.RespondWithBadRequest(c, "Could not start chat turn", gin.H{"error": err.Error()})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	if raw := c.Query(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
