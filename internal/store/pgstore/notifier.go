package pgstore

import (
	"sync"

	"chat-sync/internal/store"
)

// subscriber wraps one registered change listener. deliver serializes
// callbacks so a single subscription observes snapshots in arrival order.
type subscriber struct {
	mu       sync.Mutex
	onChange func(store.Snapshot)
	onError  func(error)
}

func (s *subscriber) deliver(snap store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange(snap)
}

func (s *subscriber) fail(err error) {
	if s.onError == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError(err)
}

// notifier maintains active subscriptions keyed by document path.
type notifier struct {
	mu   sync.RWMutex
	next int
	subs map[string]map[int]*subscriber
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]map[int]*subscriber)}
}

func pathKey(collection, id string) string {
	return collection + "/" + id
}

// add registers a subscriber for a path and returns its removal func.
// Removal is idempotent.
func (n *notifier) add(collection, id string, sub *subscriber) func() {
	key := pathKey(collection, id)

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[key]; !ok {
		n.subs[key] = make(map[int]*subscriber)
	}
	token := n.next
	n.next++
	n.subs[key][token] = sub

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if subs, ok := n.subs[key]; ok {
				delete(subs, token)
				if len(subs) == 0 {
					delete(n.subs, key)
				}
			}
		})
	}
}

// publish fans a snapshot out to every subscriber of the path.
func (n *notifier) publish(collection, id string, snap store.Snapshot) {
	n.mu.RLock()
	subs := make([]*subscriber, 0, len(n.subs[pathKey(collection, id)]))
	for _, sub := range n.subs[pathKey(collection, id)] {
		subs = append(subs, sub)
	}
	n.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(snap)
	}
}
