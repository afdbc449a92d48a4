package session

import (
	"sync"

	"go.uber.org/zap"

	"chat-sync/internal/models"
	"chat-sync/internal/presence"
	"chat-sync/internal/roster"
)

// Session is the explicit per-login object owning the resources tied to a
// signed-in identity: the presence heartbeat loop and the live roster
// subscription. The caller that starts a session closes it on logical
// teardown; Close is idempotent.
type Session struct {
	UserID string

	manager      *Manager
	cancelRoster func()
	once         sync.Once
}

// Close stops the roster subscription and, when this is still the active
// session, the heartbeat loop.
func (s *Session) Close() {
	s.once.Do(func() {
		if s.cancelRoster != nil {
			s.cancelRoster()
		}
		s.manager.mu.Lock()
		if s.manager.active == s {
			s.manager.tracker.Stop()
			s.manager.active = nil
		}
		s.manager.mu.Unlock()
		s.manager.log.Info("session closed", zap.String("user_id", s.UserID))
	})
}

// Manager opens sessions and guarantees at most one is live per process,
// which in turn guarantees at most one heartbeat loop.
type Manager struct {
	tracker *presence.Tracker
	roster  *roster.Sync
	log     *zap.Logger

	mu     sync.Mutex
	active *Session
}

func NewManager(tracker *presence.Tracker, rosterSync *roster.Sync, log *zap.Logger) *Manager {
	return &Manager{tracker: tracker, roster: rosterSync, log: log}
}

// Start opens a session for userID, closing any previous one first. onRoster,
// when non-nil, receives the enriched roster on every change for the lifetime
// of the session.
func (m *Manager) Start(userID string, onRoster func([]models.EnrichedEntry)) *Session {
	m.mu.Lock()
	prev := m.active
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	s := &Session{UserID: userID, manager: m}
	if onRoster != nil {
		s.cancelRoster = m.roster.Subscribe(userID, onRoster, nil)
	}

	m.mu.Lock()
	m.active = s
	m.mu.Unlock()

	m.tracker.Start(userID)
	m.log.Info("session started", zap.String("user_id", userID))
	return s
}

// Active returns the live session, or nil when signed out.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
