package service_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reveal-service/internal/changefeed"
	"reveal-service/internal/models"
	"reveal-service/internal/repositories"
	"reveal-service/internal/reveal"
	"reveal-service/internal/service"
	"reveal-service/internal/storage"
)

var (
	t0     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	owner  = models.Caller{ID: "owner", DisplayName: "Olive"}
	member = models.Caller{ID: "member", DisplayName: "Max"}
	guest  = models.Caller{}
)

type fixture struct {
	store    *repositories.MemoryStore
	clock    *reveal.ManualClock
	feed     *changefeed.Broker
	blobs    *storage.MemoryBlobStore
	deps     service.Deps
	groups   *service.GroupService
	messages *service.MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := reveal.NewManualClock(t0)
	store := repositories.NewMemoryStore(clock.Now)
	feed := changefeed.NewBroker()
	t.Cleanup(func() { feed.Close() })
	blobs := storage.NewMemoryBlobStore("http://media.test")
	deps := service.Deps{
		Groups:   store,
		Messages: store,
		Feed:     feed,
		Blobs:    blobs,
		Clock:    clock,
	}
	return &fixture{
		store:    store,
		clock:    clock,
		feed:     feed,
		blobs:    blobs,
		deps:     deps,
		groups:   service.NewGroupService(deps),
		messages: service.NewMessageService(deps),
	}
}

// hourGroup creates a group owned by owner revealing one hour from now.
func (f *fixture) hourGroup(t *testing.T, public, allowAll bool) models.Group {
	t.Helper()
	g, err := f.groups.CreateGroup(context.Background(), owner, models.NewGroup{
		Name:           "Time capsule",
		IsPublic:       public,
		RevealDate:     f.clock.Now().Add(time.Hour),
		AllowAllToPost: allowAll,
	})
	require.NoError(t, err)
	return g
}

func (f *fixture) messageCount(t *testing.T, groupID string) int {
	t.Helper()
	msgs, err := f.store.ListGroupMessages(context.Background(), groupID)
	require.NoError(t, err)
	return len(msgs)
}

func ptr[T any](v T) *T { return &v }

// next waits for the next value on ch.
func next[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	var zero T
	return zero
}

// waitFor reads deliveries until ok accepts one.
func waitFor[T any](t *testing.T, ch <-chan T, ok func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-ch:
			if ok(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching delivery")
		}
	}
}

func stringsReader(s string) io.Reader { return strings.NewReader(s) }

func failureEvent() changefeed.Event {
	return changefeed.Event{Err: errors.New("feed dropped")}
}
