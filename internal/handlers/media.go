package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"reveal-service/internal/storage"
)

// MediaHandler streams stored uploads back to clients.
type MediaHandler struct {
	blobs storage.BlobStore
}

func NewMediaHandler(blobs storage.BlobStore) *MediaHandler {
	return &MediaHandler{blobs: blobs}
}

// Serve handles GET /media/*path.
func (h *MediaHandler) Serve(c *gin.Context) {
	path, err := storage.CleanPath(strings.TrimPrefix(c.Param("path"), "/"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid media path"})
		return
	}

	body, contentType, err := h.blobs.Open(c.Request.Context(), path)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "media store unavailable"})
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, body, map[string]string{
		"Cache-Control": "private, max-age=3600",
	})
}
