package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/store"
)

const (
	// HeartbeatInterval is how often an active identity refreshes lastSeen.
	HeartbeatInterval = 60 * time.Second

	// onlineWindowMillis tolerates exactly one missed heartbeat tick. The
	// boundary is inclusive: a peer seen precisely 70000ms ago is online.
	onlineWindowMillis = 70_000

	beatTimeout = 10 * time.Second
)

// Tracker emits the presence heartbeat for the active identity. It writes the
// single lastSeen field of the user's profile document and nothing else. A
// failed write is logged and retried on the next tick; it never stops the
// loop. The loop also exits by itself when the active identity no longer
// matches the started user.
type Tracker struct {
	store    store.Store
	identity func() string
	log      *zap.Logger

	mu   sync.Mutex
	stop chan struct{}
}

// NewTracker builds a Tracker. identity reports the currently signed-in user
// id and may be nil when no identity check is wanted.
func NewTracker(st store.Store, identity func() string, log *zap.Logger) *Tracker {
	return &Tracker{store: st, identity: identity, log: log}
}

// Start begins the heartbeat loop for userID: one immediate write, then one
// per interval. Any previously running loop is stopped first, so at most one
// loop runs per Tracker.
func (t *Tracker) Start(userID string) {
	t.mu.Lock()
	if t.stop != nil {
		close(t.stop)
	}
	stop := make(chan struct{})
	t.stop = stop
	t.mu.Unlock()

	go t.run(userID, stop)
}

// Stop halts the heartbeat loop. Calling Stop twice is a no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *Tracker) run(userID string, stop chan struct{}) {
	t.beat(userID)

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if t.identity != nil && t.identity() != userID {
				t.log.Info("identity changed, stopping heartbeat", zap.String("user_id", userID))
				return
			}
			t.beat(userID)
		}
	}
}

func (t *Tracker) beat(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), beatTimeout)
	defer cancel()

	if err := t.Beat(ctx, userID); err != nil {
		t.log.Warn("heartbeat write failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Beat writes a single heartbeat for userID outside the loop, for callers
// that drive presence externally (such as the HTTP gateway, where each client
// reports its own activity).
func (t *Tracker) Beat(ctx context.Context, userID string) error {
	err := t.store.Update(ctx, "users", userID, store.Merges{"lastSeen": nowMillis()})
	observability.IncHeartbeat(err)
	return err
}

// IsOnline reports whether the profile's owner has heartbeated recently
// enough to be shown as online.
func IsOnline(profile models.UserProfile) bool {
	return onlineAt(profile.LastSeen, nowMillis())
}

func onlineAt(lastSeen, now int64) bool {
	return now-lastSeen <= onlineWindowMillis
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
