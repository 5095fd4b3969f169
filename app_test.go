package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reveal-service/internal/auth"
	"reveal-service/internal/config"
	"reveal-service/internal/models"
)

func memoryConfig() *config.Config {
	return &config.Config{
		HTTP:      config.HTTPConfig{Port: "0", CORSOrigin: "*"},
		Store:     config.StoreConfig{Driver: "memory"},
		Feed:      config.FeedConfig{Driver: "memory"},
		Blob:      config.BlobConfig{Driver: "memory", PublicBaseURL: "http://localhost:8083", MaxMediaBytes: 1 << 20, MaxCoverBytes: 1 << 20},
		Auth:      config.AuthConfig{Mode: "jwt", JWTSecret: "test-secret"},
		Tracing:   config.TracingConfig{Exporter: "none"},
		Reconcile: config.ReconcileConfig{Interval: 0, BatchSize: 100},
		RateLimit: config.RateLimitConfig{RPS: 100, Burst: 100},
		Env:       "test",
	}
}

func do(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := newApp(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })
	router := a.router()

	issuer := auth.NewJWTAuthenticator("test-secret")
	ownerToken, err := issuer.Issue(models.Caller{ID: "owner", DisplayName: "Olive"}, time.Hour)
	require.NoError(t, err)
	guestToken, err := issuer.Issue(models.Caller{ID: "guest"}, time.Hour)
	require.NoError(t, err)

	rec := do(t, router, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(t, router, http.MethodPost, "/groups", "", map[string]any{"name": "x"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodPost, "/groups", ownerToken, map[string]any{
		"name":        "Class of 2026",
		"is_public":   true,
		"reveal_date": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var group models.Group
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &group))

	rec = do(t, router, http.MethodGet, "/groups/public", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"groups":[]}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/groups/"+group.ID+"/messages", guestToken, map[string]any{"text": "hi"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodPost, "/groups/"+group.ID+"/join", guestToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodPost, "/groups/"+group.ID+"/messages", ownerToken, map[string]any{"text": "see you in an hour"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/groups/"+group.ID+"/messages", guestToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Messages []models.MessageView `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Messages, 1)
	assert.False(t, listed.Messages[0].Revealed)
	assert.Nil(t, listed.Messages[0].Text)

	rec = do(t, router, http.MethodPost, "/groups/"+group.ID+"/leave", ownerToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reveal_http_requests_total")
}

func TestCORSConfig(t *testing.T) {
	all := corsConfig("*")
	assert.True(t, all.AllowAllOrigins)
	assert.False(t, all.AllowCredentials)

	one := corsConfig("https://app.example.com")
	assert.Equal(t, []string{"https://app.example.com"}, one.AllowOrigins)
	assert.True(t, one.AllowCredentials)
}
