package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthHandler reports document store reachability.
type HealthHandler struct {
	store pinger
	log   *zap.Logger
}

func NewHealthHandler(store pinger, log *zap.Logger) *HealthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthHandler{store: store, log: log}
}

// Health handles GET /healthz.
func (h *HealthHandler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Reconnect handles POST /connectivity/reconnect, the manual retry after a
// connectivity loss. Pooled connections re-dial on the next use, so a
// successful ping means the store is back.
func (h *HealthHandler) Reconnect(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.log.Warn("reconnect attempt failed", zap.Error(err))
		RespondError(c, err)
		return
	}
	h.log.Info("document store reachable again")
	c.JSON(http.StatusOK, gin.H{"status": "connected"})
}
