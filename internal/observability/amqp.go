package observability

import (
	"context"
	"sync"
)

// Publisher sends JSON events with headers to the message bus.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
}

var (
	publisherMu      sync.RWMutex
	defaultPublisher Publisher
)

// SetPublisher installs the process-wide event publisher. Nil disables publishing.
func SetPublisher(publisher Publisher) {
	publisherMu.Lock()
	defaultPublisher = publisher
	publisherMu.Unlock()
}

// PublishEvent sends message through the installed publisher, adding
// correlation headers from ctx. Without a publisher it does nothing.
func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	publisherMu.RLock()
	publisher := defaultPublisher
	publisherMu.RUnlock()
	if publisher == nil {
		return nil
	}

	merged := HeadersFromContext(ctx)
	for k, v := range headers {
		merged[k] = v
	}
	err := publisher.PublishJSON(ctx, routingKey, message, merged)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
