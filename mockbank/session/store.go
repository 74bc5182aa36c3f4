package session

import "context"

// Store persists one Session per user. Load returns the idle session when
// nothing is stored or the stored session expired.
type Store interface {
	Load(ctx context.Context, userID int64) (Session, error)
	Save(ctx context.Context, userID int64, s Session) error
	Clear(ctx context.Context, userID int64) error
}
