package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reveal-service/internal/middleware"
	"reveal-service/internal/models"
	"reveal-service/internal/telemetry"
)

// GroupHandler manages group-related endpoints.
type GroupHandler struct {
	groups groupService
	audit  *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groups groupService, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{groups: groups, audit: audit}
}

// CreateGroup handles POST /groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req models.NewGroup
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(h.audit, c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groups.CreateGroup(c.Request.Context(), middleware.CallerFrom(c), req)
	if err != nil {
		auditFailure(h.audit, c, "create group", err)
		RespondError(c, err)
		return
	}

	emitAudit(h.audit, c, "INFO", "Group created")
	c.JSON(http.StatusCreated, group)
}

// ListGroups returns groups the caller belongs to.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groups.GetUserGroups(c.Request.Context(), middleware.CallerFrom(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// ListPublicGroups returns every public group. Guests get an empty list.
func (h *GroupHandler) ListPublicGroups(c *gin.Context) {
	groups, err := h.groups.GetPublicGroups(c.Request.Context(), middleware.CallerFrom(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroup handles GET /groups/:group_id.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	group, err := h.groups.GetGroup(c.Request.Context(), middleware.CallerFrom(c), c.Param("group_id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// UpdateGroup handles PATCH /groups/:group_id.
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	var req models.GroupUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		emitAudit(h.audit, c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groups.UpdateGroup(c.Request.Context(), middleware.CallerFrom(c), c.Param("group_id"), req)
	if err != nil {
		auditFailure(h.audit, c, "update group", err)
		RespondError(c, err)
		return
	}

	emitAudit(h.audit, c, "INFO", "Group updated")
	c.JSON(http.StatusOK, group)
}

// DeleteGroup handles DELETE /groups/:group_id.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	if err := h.groups.DeleteGroup(c.Request.Context(), middleware.CallerFrom(c), c.Param("group_id")); err != nil {
		auditFailure(h.audit, c, "delete group", err)
		RespondError(c, err)
		return
	}
	emitAudit(h.audit, c, "INFO", "Group deleted")
	c.Status(http.StatusNoContent)
}

// JoinGroup handles POST /groups/:group_id/join.
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	if err := h.groups.JoinGroup(c.Request.Context(), middleware.CallerFrom(c), c.Param("group_id")); err != nil {
		auditFailure(h.audit, c, "join group", err)
		RespondError(c, err)
		return
	}
	emitAudit(h.audit, c, "INFO", "Group joined")
	c.Status(http.StatusNoContent)
}

// LeaveGroup handles POST /groups/:group_id/leave.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	if err := h.groups.LeaveGroup(c.Request.Context(), middleware.CallerFrom(c), c.Param("group_id")); err != nil {
		auditFailure(h.audit, c, "leave group", err)
		RespondError(c, err)
		return
	}
	emitAudit(h.audit, c, "INFO", "Group left")
	c.Status(http.StatusNoContent)
}

// UploadCover handles POST /groups/:group_id/cover with a multipart "file" field.
func (h *GroupHandler) UploadCover(c *gin.Context) {
	upload, closeFn, ok := formUpload(c, "file")
	if !ok {
		return
	}
	defer closeFn()

	group, err := h.groups.UploadCoverImage(c.Request.Context(), middleware.CallerFrom(c), c.Param("group_id"), upload)
	if err != nil {
		auditFailure(h.audit, c, "upload cover", err)
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}
