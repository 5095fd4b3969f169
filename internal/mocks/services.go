package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"reveal-service/internal/models"
	"reveal-service/internal/service"
)

type GroupServiceMock struct {
	mock.Mock
}

func (m *GroupServiceMock) CreateGroup(ctx context.Context, caller models.Caller, in models.NewGroup) (models.Group, error) {
	args := m.Called(ctx, caller, in)
	var out models.Group
	if val := args.Get(0); val != nil {
		out = val.(models.Group)
	}
	return out, args.Error(1)
}

func (m *GroupServiceMock) GetGroup(ctx context.Context, caller models.Caller, groupID string) (models.Group, error) {
	args := m.Called(ctx, caller, groupID)
	var out models.Group
	if val := args.Get(0); val != nil {
		out = val.(models.Group)
	}
	return out, args.Error(1)
}

func (m *GroupServiceMock) UpdateGroup(ctx context.Context, caller models.Caller, groupID string, update models.GroupUpdate) (models.Group, error) {
	args := m.Called(ctx, caller, groupID, update)
	var out models.Group
	if val := args.Get(0); val != nil {
		out = val.(models.Group)
	}
	return out, args.Error(1)
}

func (m *GroupServiceMock) DeleteGroup(ctx context.Context, caller models.Caller, groupID string) error {
	args := m.Called(ctx, caller, groupID)
	return args.Error(0)
}

func (m *GroupServiceMock) JoinGroup(ctx context.Context, caller models.Caller, groupID string) error {
	args := m.Called(ctx, caller, groupID)
	return args.Error(0)
}

func (m *GroupServiceMock) LeaveGroup(ctx context.Context, caller models.Caller, groupID string) error {
	args := m.Called(ctx, caller, groupID)
	return args.Error(0)
}

func (m *GroupServiceMock) GetUserGroups(ctx context.Context, caller models.Caller) ([]models.Group, error) {
	args := m.Called(ctx, caller)
	var list []models.Group
	if val := args.Get(0); val != nil {
		list = val.([]models.Group)
	}
	return list, args.Error(1)
}

func (m *GroupServiceMock) GetPublicGroups(ctx context.Context, caller models.Caller) ([]models.Group, error) {
	args := m.Called(ctx, caller)
	var list []models.Group
	if val := args.Get(0); val != nil {
		list = val.([]models.Group)
	}
	return list, args.Error(1)
}

func (m *GroupServiceMock) UploadCoverImage(ctx context.Context, caller models.Caller, groupID string, upload service.Upload) (models.Group, error) {
	args := m.Called(ctx, caller, groupID, upload)
	var out models.Group
	if val := args.Get(0); val != nil {
		out = val.(models.Group)
	}
	return out, args.Error(1)
}

func (m *GroupServiceMock) SubscribeUserGroups(caller models.Caller, onUpdate func([]models.Group)) func() {
	args := m.Called(caller, onUpdate)
	if fn, ok := args.Get(0).(func()); ok {
		return fn
	}
	return func() {}
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) SendTextMessage(ctx context.Context, caller models.Caller, groupID, text string, revealAt *time.Time) (models.Message, error) {
	args := m.Called(ctx, caller, groupID, text, revealAt)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageServiceMock) SendMediaMessage(ctx context.Context, caller models.Caller, groupID string, upload service.Upload, mediaType models.MediaType, revealAt *time.Time) (models.Message, error) {
	args := m.Called(ctx, caller, groupID, upload, mediaType, revealAt)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageServiceMock) Messages(ctx context.Context, caller models.Caller, groupID string) ([]models.MessageView, error) {
	args := m.Called(ctx, caller, groupID)
	var list []models.MessageView
	if val := args.Get(0); val != nil {
		list = val.([]models.MessageView)
	}
	return list, args.Error(1)
}

func (m *MessageServiceMock) LatestMessages(ctx context.Context, caller models.Caller, groupID string, limit int) ([]models.MessageView, error) {
	args := m.Called(ctx, caller, groupID, limit)
	var list []models.MessageView
	if val := args.Get(0); val != nil {
		list = val.([]models.MessageView)
	}
	return list, args.Error(1)
}

func (m *MessageServiceMock) DeleteMessage(ctx context.Context, caller models.Caller, messageID string) error {
	args := m.Called(ctx, caller, messageID)
	return args.Error(0)
}

func (m *MessageServiceMock) ToggleReaction(ctx context.Context, caller models.Caller, messageID, emoji string) (models.Reactions, error) {
	args := m.Called(ctx, caller, messageID, emoji)
	var out models.Reactions
	if val := args.Get(0); val != nil {
		out = val.(models.Reactions)
	}
	return out, args.Error(1)
}

func (m *MessageServiceMock) ReconcileGroup(ctx context.Context, caller models.Caller, groupID string) (service.ReconcileResult, error) {
	args := m.Called(ctx, caller, groupID)
	var out service.ReconcileResult
	if val := args.Get(0); val != nil {
		out = val.(service.ReconcileResult)
	}
	return out, args.Error(1)
}

func (m *MessageServiceMock) SubscribeToMessages(ctx context.Context, caller models.Caller, groupID string, onUpdate func([]models.MessageView)) (func(), error) {
	args := m.Called(ctx, caller, groupID, onUpdate)
	var cancel func()
	if fn, ok := args.Get(0).(func()); ok {
		cancel = fn
	}
	return cancel, args.Error(1)
}
