package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps the redis client used for agent thread memory and the login
// attempt limiter.
type Store struct {
	rdb       *redis.Client
	memoryTTL time.Duration
}

func New(addr, password string, db int, memoryTTL time.Duration) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		memoryTTL: memoryTTL,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func threadKey(threadID string) string { return "agent:thread:" + threadID }

// LoadThread returns the rolling context for a conversation thread, or ""
// when none is stored.
func (s *Store) LoadThread(ctx context.Context, threadID string) (string, error) {
	v, err := s.rdb.Get(ctx, threadKey(threadID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// SaveThread stores the rolling context, refreshing the TTL.
func (s *Store) SaveThread(ctx context.Context, threadID, summary string) error {
	return s.rdb.Set(ctx, threadKey(threadID), summary, s.memoryTTL).Err()
}

// ClearThread drops the thread memory; called when the conversation is deleted.
func (s *Store) ClearThread(ctx context.Context, threadID string) error {
	return s.rdb.Del(ctx, threadKey(threadID)).Err()
}

// IncrLoginFailures bumps the per-email failure counter and returns the new
// count. The window resets after the TTL.
func (s *Store) IncrLoginFailures(ctx context.Context, email string, window time.Duration) (int64, error) {
	key := fmt.Sprintf("login:failures:%s", email)
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		_ = s.rdb.Expire(ctx, key, window).Err()
	}
	return n, nil
}

func (s *Store) ResetLoginFailures(ctx context.Context, email string) error {
	return s.rdb.Del(ctx, fmt.Sprintf("login:failures:%s", email)).Err()
}
