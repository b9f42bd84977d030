// Package redis backs the abuse guard with shared Redis state so lockouts
// apply across every instance fronting the same vault.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	failureKeyPrefix = "guard:fail:"
	lockKeyPrefix    = "guard:lock:"
)

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// RecordFailure increments the window counter atomically. The expiry is set
// only when the key is created, so the window is anchored to the first
// failure.
func (s *Store) RecordFailure(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := failureKeyPrefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *Store) Lock(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, lockKeyPrefix+key, "1", ttl).Err()
}

func (s *Store) IsLocked(ctx context.Context, key string) (bool, time.Duration, error) {
	ttl, err := s.client.TTL(ctx, lockKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	// TTL returns negative durations for missing keys and keys without
	// expiry; neither counts as locked.
	if ttl <= 0 {
		return false, 0, nil
	}
	return true, ttl, nil
}

func (s *Store) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, failureKeyPrefix+key, lockKeyPrefix+key).Err()
}
