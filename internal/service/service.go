// Package service holds the group and message accessors: permission checks,
// reveal bookkeeping and live snapshots on top of the repositories.
package service

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"reveal-service/internal/changefeed"
	"reveal-service/internal/observability"
	"reveal-service/internal/repositories"
	"reveal-service/internal/reveal"
	"reveal-service/internal/storage"
)

var tracer = otel.Tracer("reveal-service/service")

const (
	DefaultMaxMediaBytes int64 = 25 << 20
	DefaultMaxCoverBytes int64 = 5 << 20
)

// Deps are the collaborators shared by both accessors.
type Deps struct {
	Groups   repositories.GroupRepository
	Messages repositories.MessageRepository
	Feed     changefeed.Feed
	Blobs    storage.BlobStore
	Clock    reveal.Clock
	Log      *zap.Logger

	MaxMediaBytes int64
	MaxCoverBytes int64
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = reveal.SystemClock{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Feed == nil {
		d.Feed = changefeed.NewBroker()
	}
	if d.MaxMediaBytes <= 0 {
		d.MaxMediaBytes = DefaultMaxMediaBytes
	}
	if d.MaxCoverBytes <= 0 {
		d.MaxCoverBytes = DefaultMaxCoverBytes
	}
	return d
}

// Upload is a file handed in by a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// notify tells live subscribers that something changed. Writes have already
// succeeded at this point, so a feed failure is only logged.
func (d Deps) notify(ctx context.Context, ev changefeed.Event) {
	if err := d.Feed.Publish(ctx, ev); err != nil {
		d.Log.Warn("change feed publish failed",
			zap.String("collection", string(ev.Collection)),
			zap.String("group_id", ev.GroupID),
			zap.Error(err))
	}
}

// emit publishes a domain event to the message bus.
func (d Deps) emit(ctx context.Context, name string, payload interface{}) {
	envelope := observability.EventEnvelope{
		EventType:  "domain_event",
		EventName:  name,
		OccurredAt: d.Clock.Now().UTC().Format(time.RFC3339Nano),
		Payload:    payload,
	}
	if err := observability.PublishEvent(ctx, name, envelope, nil); err != nil {
		d.Log.Warn("domain event publish failed", zap.String("event", name), zap.Error(err))
	}
}
