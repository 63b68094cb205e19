// Package redisnotify relays docstore change signals through Redis pub/sub so
// every ClassHub instance sharing a database sees every other instance's
// writes.
package redisnotify

import (
	"context"
	"strings"

	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultPrefix namespaces the pub/sub channels.
const DefaultPrefix = "classhub:docstore:"

// Notifier publishes to Redis and delivers what it receives to local
// subscribers.
type Notifier struct {
	rdb    *redis.Client
	prefix string
	local  *docstore.LocalNotifier
	pubsub *redis.PubSub
	log    *zap.Logger
	done   chan struct{}
}

// New subscribes to prefix* and starts the relay loop. It fails if the
// subscription cannot be confirmed.
func New(ctx context.Context, rdb *redis.Client, prefix string, logger *zap.Logger) (*Notifier, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	ps := rdb.PSubscribe(ctx, prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	n := &Notifier{
		rdb:    rdb,
		prefix: prefix,
		local:  docstore.NewLocalNotifier(),
		pubsub: ps,
		log:    logger,
		done:   make(chan struct{}),
	}
	go n.relay()
	return n, nil
}

func (n *Notifier) relay() {
	defer close(n.done)
	for msg := range n.pubsub.Channel() {
		coll := strings.TrimPrefix(msg.Channel, n.prefix)
		_ = n.local.Publish(context.Background(), coll)
	}
}

// Publish announces a change. If Redis is unreachable the signal is still
// delivered locally and the error returned.
func (n *Notifier) Publish(ctx context.Context, collection string) error {
	if err := n.rdb.Publish(ctx, n.prefix+collection, "changed").Err(); err != nil {
		_ = n.local.Publish(ctx, collection)
		return err
	}
	return nil
}

func (n *Notifier) Subscribe(collection string) (<-chan struct{}, func()) {
	return n.local.Subscribe(collection)
}

// Close ends the subscription and waits for the relay loop to exit.
func (n *Notifier) Close() error {
	err := n.pubsub.Close()
	<-n.done
	if err != nil && n.log != nil {
		n.log.Warn("redis pubsub close failed", zap.Error(err))
	}
	return err
}
