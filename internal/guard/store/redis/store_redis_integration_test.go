//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	guardredis "covault/internal/guard/store/redis"
	"covault/pkg/testutil/containers"
)

func TestRedisStore_FailureWindow(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	store := guardredis.New(rc.Client)

	count, err := store.RecordFailure(ctx, "mallory", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.RecordFailure(ctx, "mallory", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	ttl := rc.Client.TTL(ctx, "guard:fail:mallory").Val()
	assert.Greater(t, ttl, 50*time.Second)
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisStore_LockLifecycle(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	store := guardredis.New(rc.Client)

	locked, _, err := store.IsLocked(ctx, "mallory")
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, store.Lock(ctx, "mallory", 10*time.Minute))

	locked, remaining, err := store.IsLocked(ctx, "mallory")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Greater(t, remaining, 9*time.Minute)

	require.NoError(t, store.Clear(ctx, "mallory"))

	locked, _, err = store.IsLocked(ctx, "mallory")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestRedisStore_ShortLockExpires(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	store := guardredis.New(rc.Client)

	require.NoError(t, store.Lock(ctx, "mallory", time.Second))
	time.Sleep(1100 * time.Millisecond)

	locked, _, err := store.IsLocked(ctx, "mallory")
	require.NoError(t, err)
	assert.False(t, locked)
}
