package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reveal-service/internal/changefeed"
	"reveal-service/internal/mocks"
	"reveal-service/internal/models"
	"reveal-service/internal/reveal"
	"reveal-service/internal/service"
)

func mockedMessages(groups *mocks.GroupRepositoryMock, messages *mocks.MessageRepositoryMock, feed changefeed.Feed) *service.MessageService {
	return service.NewMessageService(service.Deps{
		Groups:   groups,
		Messages: messages,
		Feed:     feed,
		Clock:    reveal.NewManualClock(t0),
	})
}

func TestReconcileSkipsGroupThatFailsToLoad(t *testing.T) {
	groups := &mocks.GroupRepositoryMock{}
	messages := &mocks.MessageRepositoryMock{}
	feed := changefeed.NewBroker()
	events, unsubscribe := feed.Subscribe(nil)
	defer unsubscribe()

	groups.On("GetGroup", mock.Anything, "A").Return(nil, errors.New("timeout"))
	groups.On("GetGroup", mock.Anything, "B").Return(models.Group{ID: "B", RevealDate: t0.Add(-time.Hour)}, nil)
	messages.On("MarkRevealed", mock.Anything, []string{"b1", "b2"}).Return(int64(2), nil)

	msgs := []models.Message{
		{ID: "a1", GroupID: "A"},
		{ID: "b1", GroupID: "B"},
		{ID: "a2", GroupID: "A"},
		{ID: "b2", GroupID: "B"},
		{ID: "b3", GroupID: "B", IsRevealed: true},
	}
	res, err := mockedMessages(groups, messages, feed).ReconcileRevealedStatus(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Examined)
	assert.Equal(t, 2, res.Eligible)
	assert.Equal(t, int64(2), res.Revealed)
	assert.Equal(t, []string{"A"}, res.FailedGroups)

	groups.AssertNumberOfCalls(t, "GetGroup", 2)
	messages.AssertExpectations(t)

	ev := next(t, events)
	assert.Equal(t, changefeed.Event{Collection: changefeed.Messages, GroupID: "B"}, ev)
}

func TestReconcileWritesNothingWhenNothingIsDue(t *testing.T) {
	groups := &mocks.GroupRepositoryMock{}
	messages := &mocks.MessageRepositoryMock{}
	groups.On("GetGroup", mock.Anything, "G").Return(models.Group{ID: "G", RevealDate: t0.Add(time.Hour)}, nil)

	svc := mockedMessages(groups, messages, changefeed.NewBroker())
	res, err := svc.ReconcileRevealedStatus(context.Background(), []models.Message{{ID: "m1", GroupID: "G"}})
	require.NoError(t, err)
	assert.Zero(t, res.Eligible)
	messages.AssertNotCalled(t, "MarkRevealed", mock.Anything, mock.Anything)

	res, err = svc.ReconcileRevealedStatus(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Examined)
}

func TestReconcileUsesPerMessageDates(t *testing.T) {
	groups := &mocks.GroupRepositoryMock{}
	messages := &mocks.MessageRepositoryMock{}
	groups.On("GetGroup", mock.Anything, "P").
		Return(models.Group{ID: "P", RevealPerMessage: true, RevealDate: t0.AddDate(1, 0, 0)}, nil)
	messages.On("MarkRevealed", mock.Anything, []string{"due"}).Return(int64(1), nil)

	msgs := []models.Message{
		{ID: "due", GroupID: "P", RevealDate: t0},
		{ID: "later", GroupID: "P", RevealDate: t0.Add(time.Minute)},
	}
	res, err := mockedMessages(groups, messages, changefeed.NewBroker()).ReconcileRevealedStatus(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Revealed)
	messages.AssertExpectations(t)
}

func TestReconcileCommitFailure(t *testing.T) {
	groups := &mocks.GroupRepositoryMock{}
	messages := &mocks.MessageRepositoryMock{}
	feed := changefeed.NewBroker()
	events, unsubscribe := feed.Subscribe(nil)
	defer unsubscribe()

	groups.On("GetGroup", mock.Anything, "G").Return(models.Group{ID: "G", RevealDate: t0}, nil)
	messages.On("MarkRevealed", mock.Anything, []string{"m1"}).Return(int64(0), errors.New("tx aborted"))

	res, err := mockedMessages(groups, messages, feed).ReconcileRevealedStatus(context.Background(), []models.Message{{ID: "m1", GroupID: "G"}})
	require.NoError(t, err)
	assert.True(t, res.CommitFailed)
	assert.Equal(t, 1, res.Eligible)
	assert.Zero(t, res.Revealed)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestReconcileGroupRequiresMembership(t *testing.T) {
	f := newFixture(t)
	g := f.hourGroup(t, true, false)

	_, err := f.messages.ReconcileGroup(context.Background(), member, g.ID)
	require.ErrorIs(t, err, service.ErrNotAMember)
	_, err = f.messages.ReconcileGroup(context.Background(), guest, g.ID)
	require.ErrorIs(t, err, service.ErrAuthRequired)
}
