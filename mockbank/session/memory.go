package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore constructs an in-memory Store for tests and single-process
// deployments. Sessions idle for longer than ttl are dropped on read; a
// non-positive ttl keeps them forever.
func NewMemoryStore(ttl time.Duration) Store {
	return newMemoryStore(ttl, time.Now)
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *memoryStore {
	return &memoryStore{
		sessions: make(map[int64]Session),
		ttl:      ttl,
		now:      now,
	}
}

// Load returns the session for a user, or the idle session.
func (m *memoryStore) Load(ctx context.Context, userID int64) (Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if !ok {
		return Idle(), nil
	}
	if s.Expired(m.ttl, m.now()) {
		m.mu.Lock()
		delete(m.sessions, userID)
		m.mu.Unlock()
		logger.Debug(ctx, "session", "session.expired",
			slog.Int64("user_id", userID),
			slog.String("flow", string(s.Flow())),
			slog.Int("step", s.Step()),
		)
		return Idle(), nil
	}
	return s, nil
}

// Save stores s, stamping its update time. Saving an idle session clears.
func (m *memoryStore) Save(_ context.Context, userID int64, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.IsIdle() {
		delete(m.sessions, userID)
		return nil
	}
	m.sessions[userID] = s.Touched(m.now())
	return nil
}

// Clear removes the session of a user.
func (m *memoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}
