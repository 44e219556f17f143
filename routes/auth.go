package routes

import (
	"context"
	"net/http"
	"strings"
	"time"

	"tenant-rag-chatbot/internal/auth"
	"tenant-rag-chatbot/internal/config"
	"tenant-rag-chatbot/middleware"
	"tenant-rag-chatbot/models"
	"tenant-rag-chatbot/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name,omitempty"`
	TenantID string `json:"tenant_id" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	TenantID string `json:"tenant_id" binding:"required"`
}

type userInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
}

func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, mongoClient *mongo.Client, rdb *redis.Client, authMiddleware *middleware.AuthMiddleware) {
	authGroup := router.Group("/auth")

	db := mongoClient.Database(cfg.DBName)
	usersCollection := db.Collection("users")
	tenantsCollection := db.Collection("tenants")

	authGroup.POST("/register", func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()

		var tenant models.Tenant
		if err := tenantsCollection.FindOne(ctx, bson.M{"_id": req.TenantID}).Decode(&tenant); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest,
				"unknown_tenant", "Tenant does not exist", nil)
			return
		}
		if !tenant.IsActive {
			utils.RespondWithForbidden(c, "Tenant account is not active")
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		var existing models.User
		if err := usersCollection.FindOne(ctx, bson.M{"email": email, "tenant_id": req.TenantID}).Decode(&existing); err == nil {
			utils.RespondWithError(c, http.StatusConflict,
				"email_exists", "An account with this email already exists", nil)
			return
		}

		hashed, err := utils.HashPassword(req.Password, cfg.BcryptCost)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to process password", nil)
			return
		}

		now := time.Now().UTC()
		user := models.User{
			ID:             uuid.NewString(),
			TenantID:       req.TenantID,
			Email:          email,
			HashedPassword: hashed,
			FullName:       req.FullName,
			Role:           "user",
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if _, err := usersCollection.InsertOne(ctx, user); err != nil {
			utils.RespondWithInternalError(c, "Failed to create user", nil)
			return
		}

		tokenPair, err := auth.IssueTokenPair(user.ID, user.TenantID, user.Role, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		setAuthCookies(c, cfg, tokenPair)
		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokenPair.AccessToken,
			"refresh_token": tokenPair.RefreshToken,
			"expires_at":    tokenPair.AccessExp,
			"user":          toUserInfo(&user),
		})
	})

	authGroup.POST("/login", func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		email := strings.ToLower(strings.TrimSpace(req.Email))

		var user models.User
		err := usersCollection.FindOne(ctx, bson.M{"email": email, "tenant_id": req.TenantID}).Decode(&user)
		if err != nil || !utils.CheckPassword(req.Password, user.HashedPassword) {
			utils.RespondWithError(c, http.StatusUnauthorized,
				"invalid_credentials", "Invalid email or password", nil)
			return
		}
		if !user.IsActive {
			utils.RespondWithForbidden(c, "Account is disabled")
			return
		}

		tokenPair, err := auth.IssueTokenPair(user.ID, user.TenantID, user.Role, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		setAuthCookies(c, cfg, tokenPair)
		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokenPair.AccessToken,
			"refresh_token": tokenPair.RefreshToken,
			"expires_at":    tokenPair.AccessExp,
			"user":          toUserInfo(&user),
		})
	})

	authGroup.POST("/refresh", func(c *gin.Context) {
		refreshToken := resolveRefreshToken(c)
		if refreshToken == "" {
			utils.RespondWithUnauthorized(c, "Refresh token is required")
			return
		}

		claims, err := auth.ValidateRefreshToken(refreshToken, rdb)
		if err != nil {
			utils.RespondWithError(c, http.StatusUnauthorized,
				"refresh_token_expired", "Your session has expired. Please log in again.",
				gin.H{"error": err.Error()})
			return
		}

		// Rotate: the old refresh token is dead from here on.
		if err := auth.RevokeToken(claims.ID, true, rdb); err != nil {
			utils.RespondWithInternalError(c, "Failed to rotate refresh token", nil)
			return
		}

		tokenPair, err := auth.IssueTokenPair(claims.UserID, claims.TenantID, claims.Role, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		setAuthCookies(c, cfg, tokenPair)
		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokenPair.AccessToken,
			"refresh_token": tokenPair.RefreshToken,
			"expires_at":    tokenPair.AccessExp,
		})
	})

	authGroup.POST("/logout", authMiddleware.RequireAuth(), func(c *gin.Context) {
		if claims, exists := c.Get("claims"); exists {
			if cl, ok := claims.(*auth.Claims); ok {
				if err := auth.RevokeAllUserTokens(cl.UserID, rdb); err != nil {
					utils.RespondWithInternalError(c, "Failed to revoke session", nil)
					return
				}
			}
		}

		clearAuthCookies(c, cfg)
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	})

	authGroup.GET("/me", authMiddleware.RequireAuth(), func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		tenantID := middleware.GetTenantID(c)

		var user models.User
		err := usersCollection.FindOne(context.Background(),
			bson.M{"_id": userID, "tenant_id": tenantID}).Decode(&user)
		if err != nil {
			utils.RespondWithNotFound(c, "User not found")
			return
		}

		c.JSON(http.StatusOK, toUserInfo(&user))
	})
}

func resolveRefreshToken(c *gin.Context) string {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&body); err == nil && body.RefreshToken != "" {
		return body.RefreshToken
	}
	if cookie, err := c.Cookie("refresh_token"); err == nil {
		return cookie
	}
	return ""
}

func setAuthCookies(c *gin.Context, cfg *config.Config, pair *auth.TokenPair) {
	secure := cfg.GinMode == "release"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", pair.AccessToken,
		int(time.Until(pair.AccessExp).Seconds()), "/", "", secure, true)
	c.SetCookie("refresh_token", pair.RefreshToken,
		int(time.Until(pair.RefreshExp).Seconds()), "/", "", secure, true)
}

func clearAuthCookies(c *gin.Context, cfg *config.Config) {
	secure := cfg.GinMode == "release"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", "", -1, "/", "", secure, true)
	c.SetCookie("refresh_token", "", -1, "/", "", secure, true)
}

func toUserInfo(u *models.User) userInfo {
	return userInfo{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
		TenantID: u.TenantID,
	}
}
