package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
)

// DefaultRedisPrefix namespaces session keys.
const DefaultRedisPrefix = "mockbank:session:"

// RedisStore keeps sessions in Redis as JSON documents. Expiry is delegated
// to the key TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore wires a RedisStore. A non-positive ttl stores keys without expiry.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

func (r *RedisStore) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

// Load fetches and decodes the session. A missing key is the idle session.
func (r *RedisStore) Load(ctx context.Context, userID int64) (Session, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Idle(), nil
	}
	if err != nil {
		return Idle(), fmt.Errorf("redis get session: %w", err)
	}
	s, err := Unmarshal(data)
	if err != nil {
		return s, err
	}
	if s.Expired(r.ttl, r.now()) {
		logger.Debug(ctx, "session", "session.expired", slog.Int64("user_id", userID))
		return Idle(), nil
	}
	return s, nil
}

// Save encodes and stores s. Saving an idle session deletes the key.
func (r *RedisStore) Save(ctx context.Context, userID int64, s Session) error {
	if s.IsIdle() {
		return r.Clear(ctx, userID)
	}
	data, err := Marshal(s.Touched(r.now()))
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Clear deletes the session key.
func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}
