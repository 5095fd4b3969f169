package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reveal-service/internal/middleware"
	"reveal-service/internal/observability"
	"reveal-service/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := observability.RequestIDFromContext(c.Request.Context()); id != "" {
		return id
	}
	if id := c.GetHeader(middleware.RequestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

func userIDFromContext(c *gin.Context) *string {
	caller := middleware.CallerFrom(c)
	if !caller.Authenticated() {
		return nil
	}
	id := caller.ID
	return &id
}

// auditEntry describes the current request. The action is the matched route.
func auditEntry(c *gin.Context, level, text string) telemetry.Entry {
	return telemetry.Entry{
		Level:     level,
		Action:    c.Request.Method + " " + c.FullPath(),
		Text:      text,
		GroupID:   c.Param("group_id"),
		MessageID: c.Param("message_id"),
		RequestID: requestIDFromContext(c),
		UserID:    userIDFromContext(c),
	}
}

func emitAudit(audit *telemetry.AuditEmitter, c *gin.Context, level, text string) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), auditEntry(c, level, text))
}

// auditFailure records a failed request. Client errors are INFO, the rest ERROR.
func auditFailure(audit *telemetry.AuditEmitter, c *gin.Context, text string, err error) {
	level := "ERROR"
	if status := StatusFor(err); status < 500 {
		level = "INFO"
	}
	emitAudit(audit, c, level, text+": "+err.Error())
}
