package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"xepbot/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	service.SetJWTSecret("middleware-test-secret")
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := gin.New()
	r.GET("/me", Auth(), func(c *gin.Context) {
		uid, _ := UserID(c)
		tg, _ := TgID(c)
		c.JSON(http.StatusOK, gin.H{"uid": uid, "tg": tg})
	})

	require.Equal(t, http.StatusUnauthorized, do(r, "GET", "/me", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(r, "GET", "/me", "garbage").Code)

	token, err := service.GenerateJWT(5, 500)
	require.NoError(t, err)
	w := do(r, "GET", "/me", token)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"uid":5,"tg":500}`, w.Body.String())
}

func TestAdminOnly(t *testing.T) {
	r := gin.New()
	r.GET("/admin", Auth(), AdminOnly(func(tg int64) bool { return tg == 1 }), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	admin, _ := service.GenerateJWT(10, 1)
	user, _ := service.GenerateJWT(11, 2)
	require.Equal(t, http.StatusNoContent, do(r, "GET", "/admin", admin).Code)
	require.Equal(t, http.StatusForbidden, do(r, "GET", "/admin", user).Code)
}

type countingLimiter struct {
	limit int
	seen  map[string]int
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.err != nil {
		return true, l.err
	}
	l.seen[key]++
	return l.seen[key] <= l.limit, nil
}

func TestRateLimit(t *testing.T) {
	l := &countingLimiter{limit: 2, seen: map[string]int{}}
	r := gin.New()
	r.GET("/x", RateLimit(l), func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, do(r, "GET", "/x", "").Code)
	require.Equal(t, http.StatusOK, do(r, "GET", "/x", "").Code)
	require.Equal(t, http.StatusTooManyRequests, do(r, "GET", "/x", "").Code)
	require.Len(t, l.seen, 1)

	l.err = errors.New("redis down")
	require.Equal(t, http.StatusOK, do(r, "GET", "/x", "").Code)
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(), Metrics())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, "GET", "/ping", "")
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "fixed-id", w.Header().Get(RequestIDHeader))
}

func TestCORS_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS("https://app.example"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("OPTIONS", "/x", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 204, w.Code)
	require.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
