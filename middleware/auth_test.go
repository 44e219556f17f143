package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"tenant-rag-chatbot/internal/auth"
	"tenant-rag-chatbot/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func testContext(t *testing.T, req *http.Request) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

func TestResolveToken(t *testing.T) {
	t.Run("authorization header wins over cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer header-token")
		req.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie-token"})

		c, _ := testContext(t, req)
		if got := resolveToken(c); got != "header-token" {
			t.Errorf("resolveToken = %q, want header-token", got)
		}
	})

	t.Run("falls back to access_token cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie-token"})

		c, _ := testContext(t, req)
		if got := resolveToken(c); got != "cookie-token" {
			t.Errorf("resolveToken = %q, want cookie-token", got)
		}
	})

	t.Run("empty when neither is present", func(t *testing.T) {
		c, _ := testContext(t, httptest.NewRequest(http.MethodGet, "/", nil))
		if got := resolveToken(c); got != "" {
			t.Errorf("resolveToken = %q, want empty", got)
		}
	})
}

func TestRequireAuthMissingToken(t *testing.T) {
	a := NewAuthMiddleware(&config.Config{GinMode: "debug"}, nil)

	c, w := testContext(t, httptest.NewRequest(http.MethodGet, "/", nil))
	a.RequireAuth()(c)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if !c.IsAborted() {
		t.Error("request was not aborted")
	}
}

// TestRequireAuthSilentRefresh needs a live Redis; set REDIS_ADDR to run it.
// It covers the rotation path: a dead access token plus a valid refresh
// cookie must yield a fresh identity and revoke the old refresh token.
func TestRequireAuthSilentRefresh(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	t.Setenv("ACCESS_SECRET", strings.Repeat("a", 32))
	t.Setenv("REFRESH_SECRET", strings.Repeat("r", 32))

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	pair, err := auth.IssueTokenPair("u1", "acme", "member", rdb)
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	a := NewAuthMiddleware(&config.Config{GinMode: "debug"}, rdb)

	var gotUserID, gotTenantID string
	router.GET("/whoami", a.RequireAuth(), func(c *gin.Context) {
		gotUserID = GetUserID(c)
		gotTenantID = GetTenantID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: pair.RefreshToken})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if gotUserID != "u1" || gotTenantID != "acme" {
		t.Errorf("identity = %q/%q, want u1/acme", gotUserID, gotTenantID)
	}

	var sawAccess, sawRefresh bool
	for _, cookie := range w.Result().Cookies() {
		switch cookie.Name {
		case "access_token":
			sawAccess = cookie.Value != ""
		case "refresh_token":
			sawRefresh = cookie.Value != "" && cookie.Value != pair.RefreshToken
		}
	}
	if !sawAccess || !sawRefresh {
		t.Errorf("rotation did not set fresh cookies: access=%v refresh=%v", sawAccess, sawRefresh)
	}

	// The pre-rotation refresh token is single use.
	if _, err := auth.ValidateRefreshToken(pair.RefreshToken, rdb); err == nil {
		t.Error("old refresh token still validates after rotation")
	}
}
