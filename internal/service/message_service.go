package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"reveal-service/internal/changefeed"
	"reveal-service/internal/models"
	"reveal-service/internal/repositories"
	"reveal-service/internal/reveal"
)

// MessageService posts, lists and reveals messages.
type MessageService struct {
	deps Deps
}

func NewMessageService(deps Deps) *MessageService {
	return &MessageService{deps: deps.withDefaults()}
}

// postable loads the group caller wants to post into and resolves the reveal
// date the new message will carry.
func (s *MessageService) postable(ctx context.Context, caller models.Caller, groupID string, revealAt *time.Time) (models.Group, time.Time, error) {
	if !caller.Authenticated() {
		return models.Group{}, time.Time{}, fail("you must be logged in to send a message", ErrAuthRequired)
	}
	group, err := s.deps.Groups.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, time.Time{}, storeFailure("failed to load group", err)
	}
	if !group.IsMember(caller.ID) {
		return models.Group{}, time.Time{}, fail("you must be a member of the group to send messages", ErrNotAMember)
	}
	if !group.CanPost(caller.ID) {
		return models.Group{}, time.Time{}, fail("only the group owner can post in this group", ErrPermissionDenied)
	}
	if !group.RevealPerMessage {
		return group, group.RevealDate, nil
	}
	if revealAt == nil || revealAt.IsZero() {
		return models.Group{}, time.Time{}, fail("this group needs a reveal date on every message", ErrInvalidInput)
	}
	return group, *revealAt, nil
}

func newMessage(caller models.Caller, groupID string, revealDate time.Time) models.Message {
	msg := models.Message{
		GroupID:    groupID,
		SenderID:   caller.ID,
		SenderName: caller.DisplayName,
		RevealDate: revealDate,
	}
	if msg.SenderName == "" {
		msg.SenderName = "Anonymous"
	}
	if caller.PhotoURL != "" {
		photo := caller.PhotoURL
		msg.SenderPhotoURL = &photo
	}
	return msg
}

// SendTextMessage posts a hidden text message.
func (s *MessageService) SendTextMessage(ctx context.Context, caller models.Caller, groupID, text string, revealAt *time.Time) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "message.service.SendTextMessage")
	defer span.End()
	span.SetAttributes(attribute.String("group.id", groupID))

	if !caller.Authenticated() {
		return models.Message{}, fail("you must be logged in to send a message", ErrAuthRequired)
	}
	if strings.TrimSpace(text) == "" {
		return models.Message{}, fail("message cannot be empty", ErrInvalidInput)
	}
	_, revealDate, err := s.postable(ctx, caller, groupID, revealAt)
	if err != nil {
		return models.Message{}, err
	}

	msg := newMessage(caller, groupID, revealDate)
	msg.Text = &text
	return s.store(ctx, msg)
}

// SendMediaMessage uploads the media first and only then stores the message,
// so a failed upload never leaves a message behind.
func (s *MessageService) SendMediaMessage(ctx context.Context, caller models.Caller, groupID string, upload Upload, mediaType models.MediaType, revealAt *time.Time) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "message.service.SendMediaMessage")
	defer span.End()
	span.SetAttributes(attribute.String("group.id", groupID), attribute.String("media.type", string(mediaType)))

	if !caller.Authenticated() {
		return models.Message{}, fail("you must be logged in to send a message", ErrAuthRequired)
	}
	if !mediaType.Valid() {
		return models.Message{}, fail(fmt.Sprintf("unsupported media type %q", mediaType), ErrInvalidInput)
	}
	if upload.Body == nil {
		return models.Message{}, fail("no media attached", ErrInvalidInput)
	}
	if upload.Size > s.deps.MaxMediaBytes {
		return models.Message{}, fail(fmt.Sprintf("media exceeds %d bytes", s.deps.MaxMediaBytes), ErrInvalidInput)
	}
	_, revealDate, err := s.postable(ctx, caller, groupID, revealAt)
	if err != nil {
		return models.Message{}, err
	}
	if s.deps.Blobs == nil {
		return models.Message{}, fail("media storage is not configured", ErrUploadFailed)
	}

	path := blobName(groupID+"/"+caller.ID, s.deps.Clock.Now(), upload)
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.deps.Blobs.Upload(ctx, path, contentType, upload.Body); err != nil {
		s.deps.Log.Warn("media upload failed", zap.String("group_id", groupID), zap.String("path", path), zap.Error(err))
		return models.Message{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	url := s.deps.Blobs.URL(path)
	msg := newMessage(caller, groupID, revealDate)
	msg.MediaURL = &url
	msg.MediaType = &mediaType
	return s.store(ctx, msg)
}

func (s *MessageService) store(ctx context.Context, msg models.Message) (models.Message, error) {
	created, err := s.deps.Messages.CreateMessage(ctx, msg)
	if err != nil {
		return models.Message{}, storeFailure("failed to send message", err)
	}
	s.deps.notify(ctx, changefeed.Event{Collection: changefeed.Messages, GroupID: created.GroupID})
	s.deps.emit(ctx, "message.sent", map[string]interface{}{
		"message_id": created.ID, "group_id": created.GroupID, "sender_id": created.SenderID,
	})
	return created, nil
}

// blobName builds the storage path for an upload. The random part keeps the
// path from being rebuilt out of message metadata, since media is served
// without credentials.
func blobName(prefix string, now time.Time, upload Upload) string {
	return fmt.Sprintf("%s_%d_%s%s", prefix, now.UnixMilli(), uuid.NewString(), extension(upload))
}

func extension(upload Upload) string {
	if ext := filepath.Ext(upload.Filename); ext != "" && len(ext) <= 8 {
		return strings.ToLower(ext)
	}
	if upload.ContentType != "" {
		if exts, err := mime.ExtensionsByType(upload.ContentType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	return ""
}

// memberGroup loads groupID and checks that caller may read it.
func (s *MessageService) memberGroup(ctx context.Context, caller models.Caller, groupID string) (models.Group, error) {
	if !caller.Authenticated() {
		return models.Group{}, fail("you must be logged in to read messages", ErrAuthRequired)
	}
	group, err := s.deps.Groups.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, storeFailure("failed to load group", err)
	}
	if !group.IsMember(caller.ID) {
		return models.Group{}, fail("you must be a member of the group to read messages", ErrNotAMember)
	}
	return group, nil
}

// Messages lists every message of a group, oldest first.
func (s *MessageService) Messages(ctx context.Context, caller models.Caller, groupID string) ([]models.MessageView, error) {
	group, err := s.memberGroup(ctx, caller, groupID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.deps.Messages.ListGroupMessages(ctx, groupID)
	if err != nil {
		return nil, storeFailure("failed to load messages", err)
	}
	return s.views(&group, msgs, caller.ID), nil
}

// LatestMessages returns the newest limit messages of a group, oldest first.
func (s *MessageService) LatestMessages(ctx context.Context, caller models.Caller, groupID string, limit int) ([]models.MessageView, error) {
	group, err := s.memberGroup(ctx, caller, groupID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = repositories.DefaultLatestLimit
	}
	msgs, err := s.deps.Messages.LatestGroupMessages(ctx, groupID, limit)
	if err != nil {
		return nil, storeFailure("failed to load messages", err)
	}
	return s.views(&group, msgs, caller.ID), nil
}

// SubscribeToMessages delivers the group's messages now and after every change
// to them or to the group. Errors deliver an empty list. Membership is checked
// on every refresh; once the caller is no longer a member an empty list is
// delivered and the subscription ends. A deleted group keeps serving its
// orphaned messages to the remaining subscribers.
func (s *MessageService) SubscribeToMessages(ctx context.Context, caller models.Caller, groupID string, onUpdate func([]models.MessageView)) (func(), error) {
	if _, err := s.memberGroup(ctx, caller, groupID); err != nil {
		return nil, err
	}
	match := func(ev changefeed.Event) bool {
		return ev.Touches(changefeed.Messages, groupID) || (ev.Collection == changefeed.Groups && ev.GroupID == groupID)
	}
	load := func(ctx context.Context) ([]models.MessageView, error) {
		msgs, err := s.deps.Messages.ListGroupMessages(ctx, groupID)
		if err != nil {
			return nil, err
		}
		var group *models.Group
		if g, err := s.deps.Groups.GetGroup(ctx, groupID); err == nil {
			if !g.IsMember(caller.ID) {
				return nil, fail("you are no longer a member of this group", ErrNotAMember)
			}
			group = &g
		} else if !errors.Is(err, repositories.ErrGroupNotFound) {
			return nil, err
		}
		return s.views(group, msgs, caller.ID), nil
	}
	return watch(s.deps, "messages", match, load, []models.MessageView{}, onUpdate), nil
}

// views decorates msgs for viewerID. Hidden content is withheld from everyone
// except its sender. A nil group falls back to each message's own reveal date.
func (s *MessageService) views(group *models.Group, msgs []models.Message, viewerID string) []models.MessageView {
	now := s.deps.Clock.Now()
	out := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, View(now, group, m, viewerID))
	}
	return out
}

// View renders msg for viewerID at now.
func View(now time.Time, group *models.Group, msg models.Message, viewerID string) models.MessageView {
	visible := reveal.Visible(now, group, msg)
	if !visible && msg.SenderID != viewerID {
		msg.Text = nil
		msg.MediaURL = nil
	}
	return models.MessageView{Message: msg, Revealed: visible}
}

// DeleteMessage removes a message on behalf of its sender or the group owner.
func (s *MessageService) DeleteMessage(ctx context.Context, caller models.Caller, messageID string) error {
	if !caller.Authenticated() {
		return fail("you must be logged in to delete a message", ErrAuthRequired)
	}
	msg, err := s.deps.Messages.GetMessage(ctx, messageID)
	if err != nil {
		return storeFailure("failed to load message", err)
	}
	if msg.SenderID != caller.ID {
		group, err := s.deps.Groups.GetGroup(ctx, msg.GroupID)
		if err != nil && !errors.Is(err, repositories.ErrGroupNotFound) {
			return storeFailure("failed to load group", err)
		}
		if err != nil || !group.IsOwner(caller.ID) {
			return fail("you can only delete your own messages", ErrPermissionDenied)
		}
	}
	if err := s.deps.Messages.DeleteMessage(ctx, messageID); err != nil {
		return storeFailure("failed to delete message", err)
	}
	s.deps.notify(ctx, changefeed.Event{Collection: changefeed.Messages, GroupID: msg.GroupID})
	s.deps.emit(ctx, "message.deleted", map[string]interface{}{"message_id": messageID, "group_id": msg.GroupID})
	return nil
}

// ToggleReaction adds or removes caller's emoji reaction on a message.
func (s *MessageService) ToggleReaction(ctx context.Context, caller models.Caller, messageID, emoji string) (models.Reactions, error) {
	if !caller.Authenticated() {
		return nil, fail("you must be logged in to react", ErrAuthRequired)
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, fail("emoji cannot be empty", ErrInvalidInput)
	}
	msg, err := s.deps.Messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeFailure("failed to load message", err)
	}
	if _, err := s.memberGroup(ctx, caller, msg.GroupID); err != nil {
		return nil, err
	}
	reactions, err := s.deps.Messages.ToggleReaction(ctx, messageID, emoji, caller.ID)
	if err != nil {
		return nil, storeFailure("failed to update reaction", err)
	}
	s.deps.notify(ctx, changefeed.Event{Collection: changefeed.Messages, GroupID: msg.GroupID})
	return reactions, nil
}
