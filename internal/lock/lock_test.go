package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLockerRunsUnguarded(t *testing.T) {
	var l *Locker
	assert.False(t, l.Enabled())

	ran := false
	ok, err := l.Do(context.Background(), "leak_sweep", time.Minute, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ran)

	_, _, err = l.TryLock(context.Background(), "leak_sweep", time.Minute)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.NoError(t, l.Release(context.Background(), "leak_sweep", "token"))
	assert.Nil(t, NewLocker(nil))
}

func TestLockerAgainstRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	l := NewLocker(client)
	ctx := context.Background()
	key := "test:" + time.Now().Format(time.RFC3339Nano)

	token, ok, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ran, err := l.Do(ctx, key, time.Minute, func(context.Context) error { return errors.New("must not run") })
	require.NoError(t, err)
	assert.False(t, ran)

	require.NoError(t, l.Release(ctx, key, "someone-else"))
	_, ok, _ = l.TryLock(ctx, key, time.Minute)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, key, token))
	ran, err = l.Do(ctx, key, time.Minute, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, ran)
}
