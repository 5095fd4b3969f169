package handlers

import (
	"context"
	"time"

	"reveal-service/internal/models"
	"reveal-service/internal/service"
)

type groupService interface {
	CreateGroup(ctx context.Context, caller models.Caller, in models.NewGroup) (models.Group, error)
	GetGroup(ctx context.Context, caller models.Caller, groupID string) (models.Group, error)
	UpdateGroup(ctx context.Context, caller models.Caller, groupID string, update models.GroupUpdate) (models.Group, error)
	DeleteGroup(ctx context.Context, caller models.Caller, groupID string) error
	JoinGroup(ctx context.Context, caller models.Caller, groupID string) error
	LeaveGroup(ctx context.Context, caller models.Caller, groupID string) error
	GetUserGroups(ctx context.Context, caller models.Caller) ([]models.Group, error)
	GetPublicGroups(ctx context.Context, caller models.Caller) ([]models.Group, error)
	UploadCoverImage(ctx context.Context, caller models.Caller, groupID string, upload service.Upload) (models.Group, error)
}

type messageService interface {
	SendTextMessage(ctx context.Context, caller models.Caller, groupID, text string, revealAt *time.Time) (models.Message, error)
	SendMediaMessage(ctx context.Context, caller models.Caller, groupID string, upload service.Upload, mediaType models.MediaType, revealAt *time.Time) (models.Message, error)
	Messages(ctx context.Context, caller models.Caller, groupID string) ([]models.MessageView, error)
	LatestMessages(ctx context.Context, caller models.Caller, groupID string, limit int) ([]models.MessageView, error)
	DeleteMessage(ctx context.Context, caller models.Caller, messageID string) error
	ToggleReaction(ctx context.Context, caller models.Caller, messageID, emoji string) (models.Reactions, error)
	ReconcileGroup(ctx context.Context, caller models.Caller, groupID string) (service.ReconcileResult, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ groupService   = (*service.GroupService)(nil)
	_ messageService = (*service.MessageService)(nil)
	_ pinger         = (*service.GroupService)(nil)
)
