package changefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// NotifyChannel is the Postgres LISTEN/NOTIFY channel carrying change events.
const NotifyChannel = "reveal_changes"

// PostgresFeed publishes with pg_notify and receives through a pq.Listener, so
// every service instance sharing the database sees every write.
type PostgresFeed struct {
	db       *sqlx.DB
	listener *pq.Listener
	broker   *Broker
	log      *zap.Logger
	done     chan struct{}
}

// NewPostgresFeed starts listening on NotifyChannel.
func NewPostgresFeed(dsn string, db *sqlx.DB, log *zap.Logger) (*PostgresFeed, error) {
	f := &PostgresFeed{
		db:     db,
		broker: NewBroker(),
		log:    log,
		done:   make(chan struct{}),
	}
	f.listener = pq.NewListener(dsn, 2*time.Second, time.Minute, f.onListenerEvent)
	if err := f.listener.Listen(NotifyChannel); err != nil {
		f.listener.Close()
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	go f.run()
	log.Info("postgres change feed listening", zap.String("channel", NotifyChannel))
	return f, nil
}

func (f *PostgresFeed) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		f.log.Warn("change feed connection lost", zap.Error(err))
		f.broadcast(Event{Err: fmt.Errorf("change feed disconnected: %w", err)})
	case pq.ListenerEventReconnected:
		f.log.Info("change feed reconnected")
	}
}

func (f *PostgresFeed) run() {
	for {
		select {
		case <-f.done:
			return
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// pq sends nil after a reconnect; notifications may have been missed.
				f.broadcast(Event{})
				continue
			}
			ev, err := decode([]byte(n.Extra))
			if err != nil {
				f.log.Warn("dropping malformed change event", zap.String("payload", n.Extra), zap.Error(err))
				continue
			}
			f.broadcast(ev)
		case <-time.After(90 * time.Second):
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.log.Warn("change feed ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (f *PostgresFeed) broadcast(ev Event) {
	if err := f.broker.Publish(context.Background(), ev); err != nil && err != ErrClosed {
		f.log.Warn("change feed dispatch failed", zap.Error(err))
	}
}

// Publish sends ev to every listener on the database.
func (f *PostgresFeed) Publish(ctx context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	_, err = f.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(payload))
	return err
}

func (f *PostgresFeed) Subscribe(match func(Event) bool) (<-chan Event, func()) {
	return f.broker.Subscribe(match)
}

// Close stops listening and closes all subscriptions.
func (f *PostgresFeed) Close() error {
	select {
	case <-f.done:
		return nil
	default:
	}
	close(f.done)
	err := f.listener.Close()
	f.broker.Close()
	return err
}
