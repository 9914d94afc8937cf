package channel_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/njfio/tau/channel"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *channel.RedisDedup) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	dedup, err := channel.NewRedisDedup(context.Background(), channel.RedisDedupConfig{
		Addr: mr.Addr(),
		TTL:  time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dedup.Close() })

	return mr, dedup
}

func TestRedisDedupMarkThenContains(t *testing.T) {
	_, dedup := setupMiniredis(t)
	ctx := context.Background()

	present, err := dedup.Contains(ctx, "gateway", channel.EventKey("message:evt-1"))
	require.NoError(t, err)
	require.False(t, present)

	require.NoError(t, dedup.Mark(ctx, "gateway", channel.EventKey("message:evt-1")))

	present, err = dedup.Contains(ctx, "gateway", channel.EventKey("message:evt-1"))
	require.NoError(t, err)
	require.True(t, present)
}

func TestRedisDedupScopesKeysByComponent(t *testing.T) {
	_, dedup := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, dedup.Mark(ctx, "gateway", channel.EventKey("message:evt-1")))

	present, err := dedup.Contains(ctx, "deployment", channel.EventKey("message:evt-1"))
	require.NoError(t, err)
	require.False(t, present)
}

func TestRedisDedupEntriesExpire(t *testing.T) {
	mr, dedup := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, dedup.Mark(ctx, "gateway", channel.EventKey("message:evt-1")))
	mr.FastForward(2 * time.Minute)

	present, err := dedup.Contains(ctx, "gateway", channel.EventKey("message:evt-1"))
	require.NoError(t, err)
	require.False(t, present)
}
