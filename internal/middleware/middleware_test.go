package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"reveal-service/internal/auth"
)

func setupRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"caller": CallerFrom(c).ID})
	})
	router.GET("/", handlers...)
	return router
}

func TestRequireCaller(t *testing.T) {
	router := setupRouter(RequireCaller(auth.GatewayAuthenticator{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(auth.HeaderUserID, "u1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"caller":"u1"}`, w.Body.String())
}

func TestOptionalCaller(t *testing.T) {
	router := setupRouter(OptionalCaller(auth.NewJWTAuthenticator("secret")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"caller":""}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimitPerCaller(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	router := setupRouter(RequireCaller(auth.GatewayAuthenticator{}), RateLimit(limiter))

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(auth.HeaderUserID, user)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}
	require.Equal(t, http.StatusOK, send("u1"))
	require.Equal(t, http.StatusTooManyRequests, send("u1"))
	require.Equal(t, http.StatusOK, send("u2"))

	limiter.Prune(-time.Second)
	require.Equal(t, http.StatusOK, send("u1"))
}

func TestRequestLoggerAndRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	router := setupRouter(RequestID(), RequestLogger(zap.New(core)))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/", fields["route"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, w.Header().Get(RequestIDHeader), fields["request_id"])
}
