// Package changefeed carries change notifications for the groups and messages
// collections so that live subscriptions know when to re-query.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Collection names a stored collection.
type Collection string

const (
	Groups   Collection = "groups"
	Messages Collection = "messages"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("change feed closed")

// Event says that something in Collection changed. GroupID narrows the change to
// one group when known. An empty Collection asks every subscriber to resync.
// Err is set when the feed itself failed.
type Event struct {
	Collection Collection `json:"collection,omitempty"`
	GroupID    string     `json:"group_id,omitempty"`
	Err        error      `json:"-"`
}

// Touches reports whether a subscriber watching collection (and, if set, groupID)
// has to reload after ev.
func (ev Event) Touches(collection Collection, groupID string) bool {
	if ev.Err != nil || ev.Collection == "" {
		return true
	}
	if ev.Collection != collection {
		return false
	}
	return groupID == "" || ev.GroupID == "" || ev.GroupID == groupID
}

// Feed publishes and fans out change events.
type Feed interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe registers for events accepted by match. The returned func
	// unregisters and closes the channel.
	Subscribe(match func(Event) bool) (<-chan Event, func())
	Close() error
}

func encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

func decode(payload []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(payload, &ev)
	return ev, err
}

// Broker is the in-process fan-out used by every Feed. On its own it is the
// memory feed for single-instance deployments.
//
// Each subscriber channel holds one pending event. Since subscribers reload a
// full snapshot per event, a pending event already covers any that arrive
// before it is consumed, so extra events are coalesced rather than queued.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
	closed bool
}

type subscriber struct {
	ch    chan Event
	match func(Event) bool
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]*subscriber)}
}

var _ Feed = (*Broker)(nil)

// Publish delivers ev to local subscribers.
func (b *Broker) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.dispatch(ev)
	return nil
}

// dispatch must be called with b.mu held.
func (b *Broker) dispatch(ev Event) {
	for _, sub := range b.subs {
		if sub.match != nil && !sub.match(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		if ev.Err == nil {
			continue
		}
		// failures replace whatever is pending so they are not lost
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Subscribe registers a local subscriber.
func (b *Broker) Subscribe(match func(Event) bool) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{ch: ch, match: match}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Subscribers reports how many subscribers are registered.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
	return nil
}
