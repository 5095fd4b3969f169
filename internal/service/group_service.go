package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"reveal-service/internal/changefeed"
	"reveal-service/internal/models"
)

// GroupService owns group lifecycle and membership.
type GroupService struct {
	deps Deps
}

func NewGroupService(deps Deps) *GroupService {
	return &GroupService{deps: deps.withDefaults()}
}

// CreateGroup stores a new group owned by caller, who becomes its only member.
func (s *GroupService) CreateGroup(ctx context.Context, caller models.Caller, in models.NewGroup) (models.Group, error) {
	ctx, span := tracer.Start(ctx, "group.service.CreateGroup")
	defer span.End()

	if !caller.Authenticated() {
		return models.Group{}, fail("you must be logged in to create a group", ErrAuthRequired)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Group{}, fail("group name cannot be empty", ErrInvalidInput)
	}

	now := s.deps.Clock.Now()
	group := models.Group{
		Name:             name,
		Description:      strings.TrimSpace(in.Description),
		OwnerID:          caller.ID,
		CreatedBy:        caller.ID,
		IsPublic:         in.IsPublic,
		Members:          []string{caller.ID},
		RevealDate:       in.RevealDate,
		RevealPerMessage: in.RevealPerMessage,
		AllowAllToPost:   in.AllowAllToPost,
		CoverImage:       in.CoverImage,
	}
	if group.RevealPerMessage {
		group.AllowAllToPost = false
		if group.RevealDate.IsZero() {
			group.RevealDate = now.AddDate(1, 0, 0)
		}
	} else {
		if group.RevealDate.IsZero() {
			return models.Group{}, fail("a reveal date is required", ErrInvalidInput)
		}
		if !group.RevealDate.After(now) {
			return models.Group{}, fail("the reveal date must be in the future", ErrInvalidInput)
		}
	}

	created, err := s.deps.Groups.CreateGroup(ctx, group)
	if err != nil {
		return models.Group{}, storeFailure("failed to create group", err)
	}
	span.SetAttributes(attribute.String("group.id", created.ID), attribute.Bool("group.is_public", created.IsPublic))

	s.deps.notify(ctx, changefeed.Event{Collection: changefeed.Groups, GroupID: created.ID})
	s.deps.emit(ctx, "group.created", map[string]interface{}{"group_id": created.ID, "owner_id": created.OwnerID})
	return created, nil
}

// GetGroup returns a group. Private groups are only shown to their members.
func (s *GroupService) GetGroup(ctx context.Context, caller models.Caller, groupID string) (models.Group, error) {
	group, err := s.deps.Groups.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, storeFailure("failed to load group", err)
	}
	if !group.IsPublic && !group.IsMember(caller.ID) {
		return models.Group{}, fail("this group is private", ErrPrivateGroup)
	}
	return group, nil
}

// ownedGroup loads groupID and checks that caller owns it.
func (s *GroupService) ownedGroup(ctx context.Context, caller models.Caller, groupID, action string) (models.Group, error) {
	if !caller.Authenticated() {
		return models.Group{}, fail("you must be logged in to "+action+" a group", ErrAuthRequired)
	}
	group, err := s.deps.Groups.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, storeFailure("failed to load group", err)
	}
	if !group.IsOwner(caller.ID) {
		return models.Group{}, fail("only the group owner can "+action+" this group", ErrPermissionDenied)
	}
	return group, nil
}

// UpdateGroup applies a partial update on behalf of the owner.
func (s *GroupService) UpdateGroup(ctx context.Context, caller models.Caller, groupID string, update models.GroupUpdate) (models.Group, error) {
	ctx, span := tracer.Start(ctx, "group.service.UpdateGroup")
	defer span.End()
	span.SetAttributes(attribute.String("group.id", groupID))

	group, err := s.ownedGroup(ctx, caller, groupID, "update")
	if err != nil {
		return models.Group{}, err
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Group{}, fail("group name cannot be empty", ErrInvalidInput)
		}
		update.Name = &name
	}
	if update.RevealDate != nil && update.RevealDate.IsZero() {
		return models.Group{}, fail("the reveal date cannot be cleared", ErrInvalidInput)
	}
	merged := update.Apply(group)
	if merged.RevealPerMessage && merged.AllowAllToPost {
		off := false
		update.AllowAllToPost = &off
	}
	if update.Empty() {
		return group, nil
	}
	if err := s.persistVisible(ctx, group, merged); err != nil {
		return models.Group{}, err
	}

	updated, err := s.deps.Groups.UpdateGroup(ctx, groupID, update)
	if err != nil {
		return models.Group{}, storeFailure("failed to update group", err)
	}
	s.deps.notify(ctx, changefeed.Event{Collection: changefeed.Groups, GroupID: groupID})
	s.deps.emit(ctx, "group.updated", map[string]interface{}{"group_id": groupID})
	return updated, nil
}

// persistVisible stores the reveal flag of every message already visible under
// the current reveal settings before they change, so moving the date later
// never hides revealed content again.
func (s *GroupService) persistVisible(ctx context.Context, current, next models.Group) error {
	if current.RevealPerMessage == next.RevealPerMessage && current.RevealDate.Equal(next.RevealDate) {
		return nil
	}
	msgs, err := s.deps.Messages.ListGroupMessages(ctx, current.ID)
	if err != nil {
		return storeFailure("failed to load messages", err)
	}
	res, err := reconcile(ctx, s.deps, msgs)
	if err != nil {
		return storeFailure("failed to keep revealed messages revealed", err)
	}
	if len(res.FailedGroups) > 0 {
		return fail("failed to keep revealed messages revealed", ErrConnectivityLost)
	}
	return nil
}

// DeleteGroup removes the group record. Its messages are left for the orphan sweep.
func (s *GroupService) DeleteGroup(ctx context.Context, caller models.Caller, groupID string) error {
	ctx, span := tracer.Start(ctx, "group.service.DeleteGroup")
	defer span.End()
	span.SetAttributes(attribute.String("group.id", groupID))

	if _, err := s.ownedGroup(ctx, caller, groupID, "delete"); err != nil {
		return err
	}
	if err := s.deps.Groups.DeleteGroup(ctx, groupID); err != nil {
		return storeFailure("failed to delete group", err)
	}
	s.deps.notify(ctx, changefeed.Event{Collection: changefeed.Groups, GroupID: groupID})
	s.deps.notify(ctx, changefeed.Event{Collection: changefeed.Messages, GroupID: groupID})
	s.deps.emit(ctx, "group.deleted", map[string]interface{}{"group_id": groupID})
	return nil
}

// JoinGroup adds caller to a public group. Joining twice is a no-op.
func (s *GroupService) JoinGroup(ctx context.Context, caller models.Caller, groupID string) error {
	if !caller.Authenticated() {
		return fail("you must be logged in to join a group", ErrAuthRequired)
	}
	group, err := s.deps.Groups.GetGroup(ctx, groupID)
	if err != nil {
		return storeFailure("failed to load group", err)
	}
	if group.IsMember(caller.ID) {
		return nil
	}
	if !group.IsPublic {
		return fail("this group is private and cannot be joined", ErrPrivateGroup)
	}
	if err := s.deps.Groups.AddMember(ctx, groupID, caller.ID); err != nil {
		return storeFailure("failed to join group", err)
	}
	s.deps.notify(ctx, changefeed.Event{Collection: changefeed.Groups, GroupID: groupID})
	s.deps.emit(ctx, "group.joined", map[string]interface{}{"group_id": groupID, "user_id": caller.ID})
	return nil
}

// LeaveGroup removes caller from the group. The owner can never leave.
func (s *GroupService) LeaveGroup(ctx context.Context, caller models.Caller, groupID string) error {
	if !caller.Authenticated() {
		return fail("you must be logged in to leave a group", ErrAuthRequired)
	}
	group, err := s.deps.Groups.GetGroup(ctx, groupID)
	if err != nil {
		return storeFailure("failed to load group", err)
	}
	if group.IsOwner(caller.ID) {
		return fail("transfer ownership or delete the group instead", ErrOwnerCannotLeave)
	}
	if !group.IsMember(caller.ID) {
		return nil
	}
	if err := s.deps.Groups.RemoveMember(ctx, groupID, caller.ID); err != nil {
		return storeFailure("failed to leave group", err)
	}
	s.deps.notify(ctx, changefeed.Event{Collection: changefeed.Groups, GroupID: groupID})
	s.deps.emit(ctx, "group.left", map[string]interface{}{"group_id": groupID, "user_id": caller.ID})
	return nil
}

// GetUserGroups lists the groups caller belongs to, newest first. Guests get none.
func (s *GroupService) GetUserGroups(ctx context.Context, caller models.Caller) ([]models.Group, error) {
	if !caller.Authenticated() {
		return []models.Group{}, nil
	}
	return s.filtered(ctx, func(g models.Group) bool { return g.IsMember(caller.ID) })
}

// GetPublicGroups lists public groups, newest first. Guests get none.
func (s *GroupService) GetPublicGroups(ctx context.Context, caller models.Caller) ([]models.Group, error) {
	if !caller.Authenticated() {
		return []models.Group{}, nil
	}
	return s.filtered(ctx, func(g models.Group) bool { return g.IsPublic })
}

// filtered scans the whole collection and keeps what matches.
// TODO: move membership filtering into an indexed members @> query once the group count outgrows a full scan.
func (s *GroupService) filtered(ctx context.Context, keep func(models.Group) bool) ([]models.Group, error) {
	all, err := s.deps.Groups.ListGroups(ctx)
	if err != nil {
		return nil, storeFailure("failed to load groups", err)
	}
	out := make([]models.Group, 0, len(all))
	for _, g := range all {
		if keep(g) {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// SubscribeUserGroups delivers caller's groups now and after every change to
// the groups collection. Errors deliver an empty list.
func (s *GroupService) SubscribeUserGroups(caller models.Caller, onUpdate func([]models.Group)) func() {
	match := func(ev changefeed.Event) bool { return ev.Touches(changefeed.Groups, "") }
	load := func(ctx context.Context) ([]models.Group, error) { return s.GetUserGroups(ctx, caller) }
	return watch(s.deps, "groups", match, load, []models.Group{}, onUpdate)
}

// UploadCoverImage stores a cover image and points the group at it.
func (s *GroupService) UploadCoverImage(ctx context.Context, caller models.Caller, groupID string, upload Upload) (models.Group, error) {
	if _, err := s.ownedGroup(ctx, caller, groupID, "update"); err != nil {
		return models.Group{}, err
	}
	if s.deps.Blobs == nil {
		return models.Group{}, fail("media storage is not configured", ErrUploadFailed)
	}
	if upload.Size > s.deps.MaxCoverBytes {
		return models.Group{}, fail(fmt.Sprintf("cover image exceeds %d bytes", s.deps.MaxCoverBytes), ErrInvalidInput)
	}
	if !strings.HasPrefix(upload.ContentType, "image/") {
		return models.Group{}, fail("cover must be an image", ErrInvalidInput)
	}

	path := blobName("covers/"+groupID, s.deps.Clock.Now(), upload)
	if err := s.deps.Blobs.Upload(ctx, path, upload.ContentType, upload.Body); err != nil {
		s.deps.Log.Warn("cover upload failed", zap.String("group_id", groupID), zap.Error(err))
		return models.Group{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	url := s.deps.Blobs.URL(path)
	updated, err := s.deps.Groups.UpdateGroup(ctx, groupID, models.GroupUpdate{CoverImage: &url})
	if err != nil {
		return models.Group{}, storeFailure("failed to save cover image", err)
	}
	s.deps.notify(ctx, changefeed.Event{Collection: changefeed.Groups, GroupID: groupID})
	return updated, nil
}

// Ping checks that the document store is reachable.
func (s *GroupService) Ping(ctx context.Context) error {
	if err := s.deps.Groups.Ping(ctx); err != nil {
		if errors.Is(err, ErrConnectivityLost) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrConnectivityLost, err)
	}
	return nil
}
