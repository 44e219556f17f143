package middleware

import (
	"net/http"
	"time"

	"tenant-rag-chatbot/internal/auth"
	"tenant-rag-chatbot/internal/config"
	"tenant-rag-chatbot/internal/logger"
	"tenant-rag-chatbot/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type AuthMiddleware struct {
	config *config.Config
	rdb    *redis.Client
}

func NewAuthMiddleware(cfg *config.Config, rdb *redis.Client) *AuthMiddleware {
	return &AuthMiddleware{
		config: cfg,
		rdb:    rdb,
	}
}

func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		tokenString := resolveToken(c)
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			c.Abort()
			return
		}

		claims, err := auth.ValidateAccessToken(tokenString, a.rdb)
		if err != nil {
			// Access token is dead; try a silent refresh from the cookie.
			claims = a.tryRefresh(c)
			if claims == nil {
				utils.RespondWithError(c, http.StatusUnauthorized,
					"session_expired",
					"Your session has expired. Please log in again.",
					gin.H{"error": err.Error()})
				c.Abort()
				return
			}
		}

		setIdentity(c, claims)
		c.Next()
	})
}

func (a *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		if tokenString := resolveToken(c); tokenString != "" {
			if claims, err := auth.ValidateAccessToken(tokenString, a.rdb); err == nil {
				setIdentity(c, claims)
				c.Set("authenticated", true)
			}
		}
		c.Next()
	})
}

// tryRefresh rotates the refresh token and returns claims for the new
// access token, or nil when no usable refresh token is present.
func (a *AuthMiddleware) tryRefresh(c *gin.Context) *auth.Claims {
	refreshToken, err := c.Cookie("refresh_token")
	if err != nil || refreshToken == "" {
		return nil
	}

	refreshClaims, err := auth.ValidateRefreshToken(refreshToken, a.rdb)
	if err != nil {
		return nil
	}

	if err := auth.RevokeToken(refreshClaims.ID, true, a.rdb); err != nil {
		logger.Warn("Failed to revoke rotated refresh token", "jti", refreshClaims.ID, "error", err)
	}

	tokenPair, err := auth.IssueTokenPair(refreshClaims.UserID, refreshClaims.TenantID, refreshClaims.Role, a.rdb)
	if err != nil {
		return nil
	}

	secure := a.config.GinMode == "release"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", tokenPair.AccessToken,
		int(1*time.Hour.Seconds()), "/", "", secure, true)
	c.SetCookie("refresh_token", tokenPair.RefreshToken,
		int(7*24*time.Hour.Seconds()), "/", "", secure, true)

	claims, err := auth.ValidateAccessToken(tokenPair.AccessToken, a.rdb)
	if err != nil {
		return nil
	}
	return claims
}

// resolveToken reads the access token from the Authorization header,
// falling back to the access_token cookie.
func resolveToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if token := utils.ExtractTokenFromHeader(authHeader); token != "" {
			return token
		}
	}
	if cookie, err := c.Cookie("access_token"); err == nil {
		return cookie
	}
	return ""
}

func setIdentity(c *gin.Context, claims *auth.Claims) {
	c.Set("user_id", claims.UserID)
	c.Set("role", claims.Role)
	c.Set("tenant_id", claims.TenantID)
	c.Set("claims", claims)
}

// Helper function to check if request is authenticated
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get("user_id")
	return exists
}

// Helper function to get user ID from context
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}

// Helper function to get role from context
func GetRole(c *gin.Context) string {
	if role, exists := c.Get("role"); exists {
		if r, ok := role.(string); ok {
			return r
		}
	}
	return ""
}

// Helper function to get tenant ID from context
func GetTenantID(c *gin.Context) string {
	if tenantID, exists := c.Get("tenant_id"); exists {
		if id, ok := tenantID.(string); ok {
			return id
		}
	}
	return ""
}
