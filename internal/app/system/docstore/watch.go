package docstore

import (
	"context"

	"github.com/dalemusser/classhub/internal/app/system/timeouts"
)

// WatchQuery implements Collection.Watch on top of Find and a Notifier.
// The subscription is taken before the first query so a write racing the
// initial read still triggers a refresh.
func WatchQuery(ctx context.Context, c Collection, n Notifier, q Query, fn func([]Document, error)) func() {
	changes, unsubscribe := n.Subscribe(c.Name())
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer unsubscribe()
		for {
			findCtx, findCancel := context.WithTimeout(ctx, timeouts.Medium())
			docs, err := c.Find(findCtx, q)
			findCancel()
			if ctx.Err() != nil {
				return
			}
			fn(docs, err)

			select {
			case <-ctx.Done():
				return
			case <-changes:
			}
		}
	}()

	return cancel
}
