package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"reveal-service/internal/middleware"
	"reveal-service/internal/models"
	"reveal-service/internal/service"
	"reveal-service/internal/telemetry"
)

// MessageHandler serves the message endpoints of a group.
type MessageHandler struct {
	messages messageService
	audit    *telemetry.AuditEmitter
}

func NewMessageHandler(messages messageService, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{messages: messages, audit: audit}
}

// GetGroupMessages returns the group's messages, oldest first. ?limit=N keeps the newest N.
func (h *MessageHandler) GetGroupMessages(c *gin.Context) {
	caller := middleware.CallerFrom(c)
	groupID := c.Param("group_id")

	var (
		views []models.MessageView
		err   error
	)
	if raw := c.Query("limit"); raw != "" {
		limit, convErr := strconv.Atoi(raw)
		if convErr != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		views, err = h.messages.LatestMessages(c.Request.Context(), caller, groupID, limit)
	} else {
		views, err = h.messages.Messages(c.Request.Context(), caller, groupID)
	}
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": views})
}

// PostGroupMessage handles POST /groups/:group_id/messages.
func (h *MessageHandler) PostGroupMessage(c *gin.Context) {
	var req struct {
		Text     string     `json:"text" binding:"required"`
		RevealAt *time.Time `json:"reveal_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(h.audit, c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.SendTextMessage(c.Request.Context(), middleware.CallerFrom(c), c.Param("group_id"), req.Text, req.RevealAt)
	if err != nil {
		auditFailure(h.audit, c, "send message", err)
		RespondError(c, err)
		return
	}

	emitAudit(h.audit, c, "INFO", "Group message sent")
	c.JSON(http.StatusCreated, msg)
}

// PostMediaMessage handles POST /groups/:group_id/messages/media. The multipart
// form carries "file", "media_type" and an optional RFC 3339 "reveal_at".
func (h *MessageHandler) PostMediaMessage(c *gin.Context) {
	var revealAt *time.Time
	if raw := c.PostForm("reveal_at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reveal_at must be RFC 3339"})
			return
		}
		revealAt = &t
	}
	mediaType := models.MediaType(c.PostForm("media_type"))

	upload, closeFn, ok := formUpload(c, "file")
	if !ok {
		return
	}
	defer closeFn()

	msg, err := h.messages.SendMediaMessage(c.Request.Context(), middleware.CallerFrom(c), c.Param("group_id"), upload, mediaType, revealAt)
	if err != nil {
		auditFailure(h.audit, c, "send media message", err)
		RespondError(c, err)
		return
	}

	emitAudit(h.audit, c, "INFO", "Group media message sent")
	c.JSON(http.StatusCreated, msg)
}

// ReconcileGroup persists reveal flags for the group's due messages.
func (h *MessageHandler) ReconcileGroup(c *gin.Context) {
	res, err := h.messages.ReconcileGroup(c.Request.Context(), middleware.CallerFrom(c), c.Param("group_id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DeleteMessage handles DELETE /messages/:message_id.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	if err := h.messages.DeleteMessage(c.Request.Context(), middleware.CallerFrom(c), c.Param("message_id")); err != nil {
		auditFailure(h.audit, c, "delete message", err)
		RespondError(c, err)
		return
	}
	emitAudit(h.audit, c, "INFO", "Group message deleted")
	c.Status(http.StatusNoContent)
}

// ToggleReaction handles POST /messages/:message_id/reactions.
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reactions, err := h.messages.ToggleReaction(c.Request.Context(), middleware.CallerFrom(c), c.Param("message_id"), req.Emoji)
	if err != nil {
		RespondError(c, err)
		return
	}
	if reactions == nil {
		reactions = models.Reactions{}
	}
	c.JSON(http.StatusOK, gin.H{"reactions": reactions})
}

// formUpload opens the multipart file in field. On failure it has already responded.
func formUpload(c *gin.Context, field string) (service.Upload, func(), bool) {
	header, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + field})
		return service.Upload{}, nil, false
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable " + field})
		return service.Upload{}, nil, false
	}
	upload := service.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	return upload, func() { _ = file.Close() }, true
}
