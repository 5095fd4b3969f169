package service

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"reveal-service/internal/changefeed"
	"reveal-service/internal/observability"
)

// watch delivers a snapshot from load right away and again after every feed
// event accepted by match. Load failures and feed failures deliver empty
// instead. A load failing with ErrNotAMember delivers empty one last time and
// ends the subscription, since the caller has lost read access. The returned
// func stops the subscription; once it returns no new delivery is started. It
// is safe to call from inside deliver and more than once.
func watch[T any](d Deps, kind string, match func(changefeed.Event) bool, load func(context.Context) (T, error), empty T, deliver func(T)) func() {
	events, unsubscribe := d.Feed.Subscribe(match)
	ctx, stop := context.WithCancel(context.Background())
	var stopped atomic.Bool

	observability.IncSubscriptions(kind)
	cancel := func() {
		if !stopped.CompareAndSwap(false, true) {
			return
		}
		stop()
		unsubscribe()
		observability.DecSubscriptions(kind)
	}

	refresh := func(cause error) {
		if stopped.Load() {
			return
		}
		snapshot, err := empty, cause
		if err == nil {
			snapshot, err = load(ctx)
		}
		if errors.Is(err, ErrNotAMember) {
			d.Log.Info("subscription ended, caller lost access", zap.String("kind", kind))
			if !stopped.Load() {
				deliver(empty)
			}
			cancel()
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.Log.Warn("subscription refresh failed, delivering empty snapshot", zap.String("kind", kind), zap.Error(err))
			snapshot = empty
		}
		if stopped.Load() {
			return
		}
		deliver(snapshot)
	}

	go func() {
		refresh(nil)
		for ev := range events {
			refresh(ev.Err)
		}
	}()

	return cancel
}
