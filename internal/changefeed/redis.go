package changefeed

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisChannel is the pub/sub channel carrying change events.
const RedisChannel = "reveal:changes"

// RedisFeed fans change events out through Redis pub/sub.
type RedisFeed struct {
	client *redis.Client
	pubsub *redis.PubSub
	broker *Broker
	log    *zap.Logger
}

// NewRedisFeed subscribes to RedisChannel on client.
func NewRedisFeed(ctx context.Context, client *redis.Client, log *zap.Logger) (*RedisFeed, error) {
	pubsub := client.Subscribe(ctx, RedisChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", RedisChannel, err)
	}
	f := &RedisFeed{client: client, pubsub: pubsub, broker: NewBroker(), log: log}
	go f.run()
	log.Info("redis change feed subscribed", zap.String("channel", RedisChannel))
	return f, nil
}

func (f *RedisFeed) run() {
	for msg := range f.pubsub.Channel() {
		ev, err := decode([]byte(msg.Payload))
		if err != nil {
			f.log.Warn("dropping malformed change event", zap.String("payload", msg.Payload), zap.Error(err))
			continue
		}
		if err := f.broker.Publish(context.Background(), ev); err != nil {
			return
		}
	}
}

// Publish sends ev to every subscriber of the channel.
func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, RedisChannel, payload).Err()
}

func (f *RedisFeed) Subscribe(match func(Event) bool) (<-chan Event, func()) {
	return f.broker.Subscribe(match)
}

// Close unsubscribes and closes all local subscriptions.
func (f *RedisFeed) Close() error {
	err := f.pubsub.Close()
	f.broker.Close()
	return err
}
