package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reveal-service/internal/models"
	"reveal-service/internal/service"
)

func TestCreateGroupSetsOwnerAndMembers(t *testing.T) {
	f := newFixture(t)
	g := f.hourGroup(t, true, false)

	assert.NotEmpty(t, g.ID)
	assert.Equal(t, owner.ID, g.OwnerID)
	assert.Equal(t, owner.ID, g.CreatedBy)
	assert.Equal(t, []string{owner.ID}, []string(g.Members))
	assert.Equal(t, t0, g.CreatedAt)
	assert.Equal(t, t0, g.UpdatedAt)
}

func TestCreateGroupValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.groups.CreateGroup(ctx, guest, models.NewGroup{Name: "x", RevealDate: t0.Add(time.Hour)})
	require.ErrorIs(t, err, service.ErrAuthRequired)

	_, err = f.groups.CreateGroup(ctx, owner, models.NewGroup{Name: "   ", RevealDate: t0.Add(time.Hour)})
	require.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = f.groups.CreateGroup(ctx, owner, models.NewGroup{Name: "x"})
	require.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = f.groups.CreateGroup(ctx, owner, models.NewGroup{Name: "x", RevealDate: t0.Add(-time.Minute)})
	require.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestRevealPerMessageNeverAllowsAllToPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.groups.CreateGroup(ctx, owner, models.NewGroup{Name: "Letters", RevealPerMessage: true, AllowAllToPost: true})
	require.NoError(t, err)
	assert.True(t, g.RevealPerMessage)
	assert.False(t, g.AllowAllToPost)
	assert.Equal(t, t0.AddDate(1, 0, 0), g.RevealDate)

	g, err = f.groups.UpdateGroup(ctx, owner, g.ID, models.GroupUpdate{AllowAllToPost: ptr(true)})
	require.NoError(t, err)
	assert.False(t, g.AllowAllToPost)

	open := f.hourGroup(t, true, true)
	require.True(t, open.AllowAllToPost)
	open, err = f.groups.UpdateGroup(ctx, owner, open.ID, models.GroupUpdate{RevealPerMessage: ptr(true)})
	require.NoError(t, err)
	assert.True(t, open.RevealPerMessage)
	assert.False(t, open.AllowAllToPost)

	stored, err := f.store.GetGroup(ctx, open.ID)
	require.NoError(t, err)
	assert.False(t, stored.RevealPerMessage && stored.AllowAllToPost)
}

func TestUpdateGroupRequiresOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.hourGroup(t, true, false)

	_, err := f.groups.UpdateGroup(ctx, member, g.ID, models.GroupUpdate{Name: ptr("mine")})
	require.ErrorIs(t, err, service.ErrPermissionDenied)

	_, err = f.groups.UpdateGroup(ctx, owner, "missing", models.GroupUpdate{Name: ptr("mine")})
	require.ErrorIs(t, err, service.ErrNotFound)

	_, err = f.groups.UpdateGroup(ctx, guest, g.ID, models.GroupUpdate{Name: ptr("mine")})
	require.ErrorIs(t, err, service.ErrAuthRequired)

	_, err = f.groups.UpdateGroup(ctx, owner, g.ID, models.GroupUpdate{Name: ptr(" ")})
	require.ErrorIs(t, err, service.ErrInvalidInput)

	f.clock.Advance(time.Minute)
	updated, err := f.groups.UpdateGroup(ctx, owner, g.ID, models.GroupUpdate{Name: ptr(" Renamed "), Description: ptr("new")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "new", updated.Description)
	assert.Equal(t, owner.ID, updated.OwnerID)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
}

func TestDeleteGroupLeavesMessagesOrphaned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.hourGroup(t, true, false)
	_, err := f.messages.SendTextMessage(ctx, owner, g.ID, "bye", nil)
	require.NoError(t, err)

	require.ErrorIs(t, f.groups.DeleteGroup(ctx, member, g.ID), service.ErrPermissionDenied)
	require.NoError(t, f.groups.DeleteGroup(ctx, owner, g.ID))
	require.ErrorIs(t, f.groups.DeleteGroup(ctx, owner, g.ID), service.ErrNotFound)

	_, err = f.store.GetGroup(ctx, g.ID)
	require.Error(t, err)
	assert.Equal(t, 1, f.messageCount(t, g.ID))
}

func TestJoinGroupIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.hourGroup(t, true, false)

	require.NoError(t, f.groups.JoinGroup(ctx, member, g.ID))
	require.NoError(t, f.groups.JoinGroup(ctx, member, g.ID))
	require.NoError(t, f.groups.JoinGroup(ctx, owner, g.ID))

	stored, err := f.store.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{owner.ID, member.ID}, []string(stored.Members))
}

func TestJoinPrivateGroupFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.hourGroup(t, false, false)

	err := f.groups.JoinGroup(ctx, member, g.ID)
	require.ErrorIs(t, err, service.ErrPrivateGroup)

	stored, err := f.store.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{owner.ID}, []string(stored.Members))

	require.ErrorIs(t, f.groups.JoinGroup(ctx, member, "missing"), service.ErrNotFound)
	require.ErrorIs(t, f.groups.JoinGroup(ctx, guest, g.ID), service.ErrAuthRequired)
}

func TestOwnerCannotLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.hourGroup(t, true, false)

	require.ErrorIs(t, f.groups.LeaveGroup(ctx, owner, g.ID), service.ErrOwnerCannotLeave)

	require.NoError(t, f.groups.JoinGroup(ctx, member, g.ID))
	require.ErrorIs(t, f.groups.LeaveGroup(ctx, owner, g.ID), service.ErrOwnerCannotLeave)

	stored, err := f.store.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Members, owner.ID)
}

func TestLeaveGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.hourGroup(t, true, false)
	require.NoError(t, f.groups.JoinGroup(ctx, member, g.ID))

	require.NoError(t, f.groups.LeaveGroup(ctx, member, g.ID))
	require.NoError(t, f.groups.LeaveGroup(ctx, member, g.ID))

	stored, err := f.store.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{owner.ID}, []string(stored.Members))
}

func TestGetUserGroupsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.hourGroup(t, true, false)
	f.clock.Advance(time.Second)
	second := f.hourGroup(t, false, false)
	f.clock.Advance(time.Second)
	_, err := f.groups.CreateGroup(ctx, member, models.NewGroup{Name: "Other", RevealDate: f.clock.Now().Add(time.Hour)})
	require.NoError(t, err)

	groups, err := f.groups.GetUserGroups(ctx, owner)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, second.ID, groups[0].ID)
	assert.Equal(t, first.ID, groups[1].ID)

	groups, err = f.groups.GetUserGroups(ctx, guest)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestGetPublicGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	public := f.hourGroup(t, true, false)
	f.hourGroup(t, false, false)

	groups, err := f.groups.GetPublicGroups(ctx, member)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, public.ID, groups[0].ID)
}

func TestGetPublicGroupsAsGuestIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.hourGroup(t, true, false)

	groups, err := f.groups.GetPublicGroups(context.Background(), guest)
	require.NoError(t, err)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestGetGroupHidesPrivateGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	private := f.hourGroup(t, false, false)

	_, err := f.groups.GetGroup(ctx, member, private.ID)
	require.ErrorIs(t, err, service.ErrPrivateGroup)

	g, err := f.groups.GetGroup(ctx, owner, private.ID)
	require.NoError(t, err)
	assert.Equal(t, private.ID, g.ID)

	_, err = f.groups.GetGroup(ctx, owner, "missing")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestSubscribeUserGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	updates := make(chan []models.Group, 16)

	cancel := f.groups.SubscribeUserGroups(member, func(groups []models.Group) { updates <- groups })
	assert.Empty(t, next(t, updates))

	g := f.hourGroup(t, true, false)
	require.NoError(t, f.groups.JoinGroup(ctx, member, g.ID))
	got := waitFor(t, updates, func(groups []models.Group) bool { return len(groups) == 1 })
	assert.Equal(t, g.ID, got[0].ID)

	require.NoError(t, f.feed.Publish(ctx, failureEvent()))
	waitFor(t, updates, func(groups []models.Group) bool { return len(groups) == 0 })

	cancel()
	cancel()
	time.Sleep(50 * time.Millisecond)
	for len(updates) > 0 {
		<-updates
	}
	second := f.hourGroup(t, true, false)
	require.NoError(t, f.groups.JoinGroup(ctx, member, second.ID))
	select {
	case groups := <-updates:
		t.Fatalf("delivery after cancel: %v", groups)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 0, f.feed.Subscribers())
}

func TestSubscribeUserGroupsAsGuest(t *testing.T) {
	f := newFixture(t)
	f.hourGroup(t, true, false)
	updates := make(chan []models.Group, 4)

	cancel := f.groups.SubscribeUserGroups(guest, func(groups []models.Group) { updates <- groups })
	defer cancel()
	assert.Empty(t, next(t, updates))
}

func TestUploadCoverImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.hourGroup(t, true, false)
	upload := service.Upload{Filename: "cover.PNG", ContentType: "image/png", Size: 4, Body: stringsReader("png!")}

	_, err := f.groups.UploadCoverImage(ctx, member, g.ID, upload)
	require.ErrorIs(t, err, service.ErrPermissionDenied)

	updated, err := f.groups.UploadCoverImage(ctx, owner, g.ID, upload)
	require.NoError(t, err)
	require.NotNil(t, updated.CoverImage)
	assert.Contains(t, *updated.CoverImage, "/media/covers/"+g.ID+"_")
	assert.Contains(t, *updated.CoverImage, ".png")
	assert.Equal(t, 1, f.blobs.Len())

	tooBig := service.Upload{Filename: "big.png", ContentType: "image/png", Size: service.DefaultMaxCoverBytes + 1, Body: stringsReader("x")}
	_, err = f.groups.UploadCoverImage(ctx, owner, g.ID, tooBig)
	require.ErrorIs(t, err, service.ErrInvalidInput)

	notImage := service.Upload{Filename: "a.txt", ContentType: "text/plain", Size: 1, Body: stringsReader("x")}
	_, err = f.groups.UploadCoverImage(ctx, owner, g.ID, notImage)
	require.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.groups.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, f.groups.Ping(ctx), service.ErrConnectivityLost)
}
