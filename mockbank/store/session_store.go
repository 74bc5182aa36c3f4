package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gabrielbm2/chatbot-telegram/mockbank/session"
)

// SessionStore keeps sessions in the session column of the user record, so a
// conversation survives restarts together with the ledger.
type SessionStore struct {
	users Store
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionStore wraps users as a session.Store.
func NewSessionStore(users Store, ttl time.Duration) *SessionStore {
	return &SessionStore{users: users, ttl: ttl, now: time.Now}
}

var _ session.Store = (*SessionStore)(nil)

func (s *SessionStore) Load(ctx context.Context, userID int64) (session.Session, error) {
	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return session.Idle(), nil
	}
	if err != nil {
		return session.Idle(), err
	}
	sess, err := session.Unmarshal(u.Session)
	if err != nil {
		return sess, err
	}
	if sess.Expired(s.ttl, s.now()) {
		return session.Idle(), nil
	}
	return sess, nil
}

func (s *SessionStore) Save(ctx context.Context, userID int64, sess session.Session) error {
	if sess.IsIdle() {
		return s.Clear(ctx, userID)
	}
	data, err := session.Marshal(sess.Touched(s.now()))
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.users.UpdateUser(ctx, userID, UserUpdate{Session: data})
}

func (s *SessionStore) Clear(ctx context.Context, userID int64) error {
	err := s.users.UpdateUser(ctx, userID, UserUpdate{ClearSession: true})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
