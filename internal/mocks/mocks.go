package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"reveal-service/internal/models"
)

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, group models.Group) (models.Group, error) {
	args := m.Called(ctx, group)
	var out models.Group
	if val := args.Get(0); val != nil {
		out = val.(models.Group)
	}
	return out, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var out models.Group
	if val := args.Get(0); val != nil {
		out = val.(models.Group)
	}
	return out, args.Error(1)
}

func (m *GroupRepositoryMock) ListGroups(ctx context.Context) ([]models.Group, error) {
	args := m.Called(ctx)
	var list []models.Group
	if val := args.Get(0); val != nil {
		list = val.([]models.Group)
	}
	return list, args.Error(1)
}

func (m *GroupRepositoryMock) UpdateGroup(ctx context.Context, groupID string, update models.GroupUpdate) (models.Group, error) {
	args := m.Called(ctx, groupID, update)
	var out models.Group
	if val := args.Get(0); val != nil {
		out = val.(models.Group)
	}
	return out, args.Error(1)
}

func (m *GroupRepositoryMock) DeleteGroup(ctx context.Context, groupID string) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) AddMember(ctx context.Context, groupID string, userID string) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) RemoveMember(ctx context.Context, groupID string, userID string) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListGroupMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	args := m.Called(ctx, groupID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) LatestGroupMessages(ctx context.Context, groupID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, groupID, limit)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkRevealed(ctx context.Context, messageIDs []string) (int64, error) {
	args := m.Called(ctx, messageIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) ListRevealCandidates(ctx context.Context, now time.Time, limit int, skipGroups []string) ([]models.Message, error) {
	args := m.Called(ctx, now, limit, skipGroups)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) ToggleReaction(ctx context.Context, messageID string, emoji string, userID string) (models.Reactions, error) {
	args := m.Called(ctx, messageID, emoji, userID)
	var out models.Reactions
	if val := args.Get(0); val != nil {
		out = val.(models.Reactions)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteOrphaned(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type BlobStoreMock struct {
	mock.Mock
}

func (m *BlobStoreMock) Upload(ctx context.Context, path string, contentType string, body io.Reader) error {
	args := m.Called(ctx, path, contentType, body)
	return args.Error(0)
}

func (m *BlobStoreMock) URL(path string) string {
	args := m.Called(path)
	return args.String(0)
}

func (m *BlobStoreMock) Open(ctx context.Context, path string) (io.ReadCloser, string, error) {
	args := m.Called(ctx, path)
	var rc io.ReadCloser
	if val := args.Get(0); val != nil {
		rc = val.(io.ReadCloser)
	}
	return rc, args.String(1), args.Error(2)
}
