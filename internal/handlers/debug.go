package handlers

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"reveal-service/internal/middleware"
	"reveal-service/internal/service"
	"reveal-service/internal/telemetry"
)

type sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// RegisterDebugRoutes wires dev-only endpoints. They are not registered unless
// enabled. The global sweep also deletes orphaned messages, so it is limited
// to the caller ids in operators.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, sweep sweeper, enabled bool, operators []string) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), auditEntry(c, "INFO", "audit test"))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/debug/sweep", func(c *gin.Context) {
		if sweep == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sweeper not configured"})
			return
		}
		caller := middleware.CallerFrom(c)
		if !caller.Authenticated() || !slices.Contains(operators, caller.ID) {
			RespondError(c, service.ErrPermissionDenied)
			return
		}
		res, err := sweep.Sweep(c.Request.Context())
		if err != nil {
			RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})
}
