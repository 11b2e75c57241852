package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/medmate/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	redisUserPrefix = "medmate:user:"
	redisCasePrefix = "medmate:case:"
	redisUserTTL    = 30 * 24 * time.Hour
)

// RedisStore implements Store on Redis. Case keys carry the session TTL and
// are refreshed on every read, so Redis performs expiry itself.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the Redis server at url.
func NewRedis(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisWithClient(redis.NewClient(opts), ttl), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func caseKey(key domain.CaseKey) string {
	return redisCasePrefix + key.String()
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

// GetUser implements Repository.
func (s *RedisStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	found, err := s.getJSON(ctx, redisUserPrefix+userID, &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// UpsertUser implements Repository.
func (s *RedisStore) UpsertUser(ctx context.Context, user *domain.User) error {
	return s.setJSON(ctx, redisUserPrefix+user.UserID, user, redisUserTTL)
}

// UpdateLastSeen implements Repository.
func (s *RedisStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	user.LastSeenAt = lastSeen
	user.UpdatedAt = time.Now()
	return s.UpsertUser(ctx, user)
}

// GetCase implements CaseStore.
func (s *RedisStore) GetCase(ctx context.Context, key domain.CaseKey) (*domain.CaseSession, error) {
	var session domain.CaseSession
	found, err := s.getJSON(ctx, caseKey(key), &session)
	if err != nil || !found {
		return nil, err
	}

	// Refresh TTL on read
	if err := s.client.Expire(ctx, caseKey(key), s.ttl).Err(); err != nil {
		slog.Debug("Failed to refresh case TTL", "user_id", key.UserID, "session_id", key.SessionID, "error", err)
	}

	return &session, nil
}

// SaveCase implements CaseStore.
func (s *RedisStore) SaveCase(ctx context.Context, session *domain.CaseSession) error {
	return s.setJSON(ctx, caseKey(session.Key()), session, s.ttl)
}

// DeleteCase implements CaseStore.
func (s *RedisStore) DeleteCase(ctx context.Context, key domain.CaseKey) error {
	if err := s.client.Del(ctx, caseKey(key)).Err(); err != nil {
		return fmt.Errorf("delete case session: %w", err)
	}
	return nil
}

// CleanupExpiredCases is a no-op: Redis expires case keys on its own.
func (s *RedisStore) CleanupExpiredCases(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (s *RedisStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(val, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
