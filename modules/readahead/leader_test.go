package readahead

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/tscached/tscached/modules/cache"
)

func newTestCache(t *testing.T) cache.Client {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	return cache.NewRedisClient(server.Addr())
}

func TestBecomeLeaderExclusiveAndReleasable(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	lease1, ok1, err := BecomeLeader(ctx, c, time.Minute)
	require.NoError(t, err)
	require.True(t, ok1)
	require.NotNil(t, lease1)

	lease2, ok2, err := BecomeLeader(ctx, c, time.Minute)
	require.NoError(t, err)
	require.False(t, ok2)
	require.Nil(t, lease2)

	require.NoError(t, lease1.Release(ctx))

	lease3, ok3, err := BecomeLeader(ctx, c, time.Minute)
	require.NoError(t, err)
	require.True(t, ok3, "lock is free after the leader releases it")
	require.NoError(t, lease3.Release(ctx))
}

func TestCurrentLeaderHostnameDiagnostics(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, ok, err := BecomeLeader(ctx, c, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	host, err := CurrentLeaderHostname(ctx, c)
	require.NoError(t, err)
	require.NotEmpty(t, host)
}

func TestCurrentLeaderHostnameAbsent(t *testing.T) {
	c := newTestCache(t)
	host, err := CurrentLeaderHostname(context.Background(), c)
	require.NoError(t, err)
	require.Empty(t, host)
}
