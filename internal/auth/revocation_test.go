package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisRevocationSetExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	set := NewRedisRevocationSet(client)
	ctx := context.Background()

	require.NoError(t, set.Revoke(ctx, "jti-1", time.Minute))
	revoked, err := set.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)
	require.Equal(t, time.Minute, mr.TTL(revokedKeyPrefix+"jti-1"))

	revoked, err = set.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	require.False(t, revoked)

	mr.FastForward(61 * time.Second)
	revoked, err = set.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRedisRevocationSetSkipsExpiredTokens(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	set := NewRedisRevocationSet(client)

	require.NoError(t, set.Revoke(context.Background(), "old", -time.Second))
	require.False(t, mr.Exists(revokedKeyPrefix+"old"))
}

func TestRedisRevocationSetReportsOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	set := NewRedisRevocationSet(client)
	mr.Close()

	_, err := set.IsRevoked(context.Background(), "jti")
	require.Error(t, err)
}

func TestMemoryRevocationSetExpires(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	set := NewMemoryRevocationSet(clock.Now)
	ctx := context.Background()

	require.NoError(t, set.Revoke(ctx, "jti", time.Minute))
	revoked, _ := set.IsRevoked(ctx, "jti")
	require.True(t, revoked)

	clock.Advance(time.Minute)
	revoked, _ = set.IsRevoked(ctx, "jti")
	require.False(t, revoked)
}
