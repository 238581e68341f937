// redis.go -- go-redis client for browser sessions and pending authorizations.
//
// Sessions and OAuth state are ephemeral, so Redis TTLs are their only lifecycle:
// nothing here is written to Postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore wraps a Redis client for session and OAuth state operations.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisClient parses redisURL, connects, and pings.
// Returned client is shared by every Redis-backed struct.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb}
}

func sessionKey(key string) string { return "session:" + key }
func stateKey(key string) string   { return "oauth_state:" + key }

// CheckHealth pings Redis.
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// SetSession caches a session under key for ttl.
func (s *RedisStore) SetSession(ctx context.Context, key string, sess Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("caching session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by key.
// Returns ErrCacheMiss when the key is absent or expired.
func (s *RedisStore) GetSession(ctx context.Context, key string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("fetching session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return &sess, nil
}

// DeleteSession removes a session and any pending authorization tied to it.
func (s *RedisStore) DeleteSession(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, sessionKey(key), stateKey(key)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// SetPendingAuthorization stores p for the browser session, replacing any earlier one.
func (s *RedisStore) SetPendingAuthorization(ctx context.Context, key string, p PendingAuthorization, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling pending authorization: %w", err)
	}
	if err := s.rdb.Set(ctx, stateKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("storing pending authorization: %w", err)
	}
	return nil
}

// TakePendingAuthorization reads and deletes the pending authorization in one GETDEL,
// so two concurrent callbacks can never both observe the same state.
// Returns ErrNoPendingAuthorization when nothing is stored.
func (s *RedisStore) TakePendingAuthorization(ctx context.Context, key string) (*PendingAuthorization, error) {
	raw, err := s.rdb.GetDel(ctx, stateKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoPendingAuthorization
		}
		return nil, fmt.Errorf("taking pending authorization: %w", err)
	}
	var p PendingAuthorization
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parsing pending authorization: %w", err)
	}
	return &p, nil
}
