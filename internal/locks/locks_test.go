package locks

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "test"), mr
}

func TestRedisLocker_Exclusive(t *testing.T) {
	locker, mr := setupRedisLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "capture:ORDER-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:capture:ORDER-1"))

	_, err = locker.Acquire(ctx, "capture:ORDER-1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("test:capture:ORDER-1"))

	_, err = locker.Acquire(ctx, "capture:ORDER-1", time.Minute)
	assert.NoError(t, err)
}

func TestRedisLocker_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	for _, prefix := range []string{"courtbooking:lock", "courtbooking:lock:"} {
		t.Run(prefix, func(t *testing.T) {
			release, err := NewRedisLocker(client, prefix).Acquire(ctx, "capture:ORDER-1", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, []string{"courtbooking:lock:capture:ORDER-1"}, mr.Keys())
			require.NoError(t, release(ctx))
		})
	}
}

func TestRedisLocker_ExpiredLeaseDoesNotReleaseNewHolder(t *testing.T) {
	locker, mr := setupRedisLocker(t)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "slot", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = locker.Acquire(ctx, "slot", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("test:slot"), "stale release must not delete the new holder's lock")
}

func TestLocalLocker(t *testing.T) {
	now := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	locker := NewLocalLocker(func() time.Time { return now })
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "slot", time.Second)
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, "slot", time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)

	now = now.Add(2 * time.Second)
	second, err := locker.Acquire(ctx, "slot", time.Second)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	_, err = locker.Acquire(ctx, "slot", time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired, "expired lease release must not free the new holder")

	require.NoError(t, second(ctx))
	_, err = locker.Acquire(ctx, "slot", time.Second)
	assert.NoError(t, err)
}

func TestAcquireWait(t *testing.T) {
	locker := NewLocalLocker(nil)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "slot", time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = release(ctx)
	}()
	got, err := AcquireWait(ctx, locker, "slot", time.Minute, 5*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = AcquireWait(short, locker, "slot", time.Minute, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
