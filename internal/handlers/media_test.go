package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reveal-service/internal/mocks"
	"reveal-service/internal/storage"
)

func setupMediaRouter(blobs storage.BlobStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/media/*path", NewMediaHandler(blobs).Serve)
	return r
}

func TestServeMedia(t *testing.T) {
	blobs := storage.NewMemoryBlobStore("http://localhost")
	require.NoError(t, blobs.Upload(context.Background(), "g1/u1_1.jpg", "image/jpeg", strings.NewReader("jpeg-bytes")))
	router := setupMediaRouter(blobs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/g1/u1_1.jpg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg-bytes", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/g1/other.jpg", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeMediaStoreFailure(t *testing.T) {
	blobs := new(mocks.BlobStoreMock)
	blobs.On("Open", mock.Anything, "g1/a.png").Return(nil, "", errors.New("mongo down")).Once()

	rec := httptest.NewRecorder()
	setupMediaRouter(blobs).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/g1/a.png", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	blobs.AssertExpectations(t)
}
