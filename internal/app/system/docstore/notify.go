package docstore

import (
	"context"
	"sync"
)

// Notifier carries "collection changed" signals from writers to watchers.
// Signals are coalesced: a watcher that is busy re-running its query sees
// at most one pending signal.
type Notifier interface {
	Publish(ctx context.Context, collection string) error
	Subscribe(collection string) (<-chan struct{}, func())
	Close() error
}

// LocalNotifier fans signals out inside one process.
type LocalNotifier struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewLocalNotifier returns an empty in-process notifier.
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[string]map[chan struct{}]struct{})}
}

func (n *LocalNotifier) Publish(_ context.Context, collection string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[collection] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (n *LocalNotifier) Subscribe(collection string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	set, ok := n.subs[collection]
	if !ok {
		set = make(map[chan struct{}]struct{})
		n.subs[collection] = set
	}
	set[ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[collection], ch)
			if len(n.subs[collection]) == 0 {
				delete(n.subs, collection)
			}
			n.mu.Unlock()
		})
	}
}

func (n *LocalNotifier) Close() error { return nil }
