package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al3dwii/agenticBE/internal/ratelimit"
)

func TestTenantLimitCheckedFirst(t *testing.T) {
	l := ratelimit.New(ratelimit.NewMemoryStore(), 2, 10)
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "t1", "u1"))
	require.NoError(t, l.Check(ctx, "t1", "u2"))
	assert.ErrorIs(t, l.Check(ctx, "t1", "u3"), ratelimit.ErrTenantLimited)

	require.NoError(t, l.Check(ctx, "t2", ""))
}

func TestUserLimit(t *testing.T) {
	l := ratelimit.New(ratelimit.NewMemoryStore(), 100, 1)
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "t1", "u1"))
	assert.ErrorIs(t, l.Check(ctx, "t1", "u1"), ratelimit.ErrUserLimited)
	assert.EqualError(t, l.Check(ctx, "t1", "u1"), "User rate limit exceeded")
	require.NoError(t, l.Check(ctx, "t1", "u2"))
	require.NoError(t, l.Check(ctx, "t1", ""))
}

func TestMemoryWindowResets(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	l := ratelimit.New(store, 1, 0)
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "t1", ""))
	assert.ErrorIs(t, l.Check(ctx, "t1", ""), ratelimit.ErrTenantLimited)

	now = now.Add(ratelimit.Window)
	require.NoError(t, l.Check(ctx, "t1", ""))
}

func TestMemoryStoreEvictsExpiredWindows(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	ctx := context.Background()

	for _, key := range []string{"rl:tenant:a", "rl:tenant:b", "rl:user:c"} {
		_, err := store.Incr(ctx, key, ratelimit.Window)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, store.Len())

	now = now.Add(ratelimit.Window)
	n, err := store.Incr(ctx, "rl:tenant:d", ratelimit.Window)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())
}

func TestRedisStore(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	l := ratelimit.New(ratelimit.NewRedisStore(client), 2, 0)
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "t1", ""))
	require.NoError(t, l.Check(ctx, "t1", ""))
	assert.ErrorIs(t, l.Check(ctx, "t1", ""), ratelimit.ErrTenantLimited)
	assert.Equal(t, 60*time.Second, srv.TTL("rl:tenant:t1"))

	srv.FastForward(61 * time.Second)
	require.NoError(t, l.Check(ctx, "t1", ""))
}
