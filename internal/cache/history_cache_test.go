package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/model"
)

func newTestCache(t *testing.T) (*HistoryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewHistoryCache(client, time.Minute, 5*time.Second), mr
}

func TestHistoryCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	version, err := c.Version(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, version)

	turns := []model.Turn{
		{SessionID: "s1", TurnIndex: 0, Role: model.RoleUser, Text: "hi"},
		{SessionID: "s1", TurnIndex: 1, Role: model.RoleAssistant, Text: "hello"},
	}
	stored, err := c.FillHistory(ctx, "s1", version, turns)
	require.NoError(t, err)
	assert.True(t, stored)

	got, ok, err := c.GetHistory(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", got[1].Text)
	assert.Equal(t, model.RoleUser, got[0].Role)
}

func TestHistoryCacheInvalidateBlocksRefill(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, err := c.FillHistory(ctx, "s1", 0, []model.Turn{{Text: "old"}})
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, "s1"))

	dirty, err := c.isDirty(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, dirty)
	_, ok, err := c.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(6 * time.Second)
	version, err := c.Version(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	stored, err := c.FillHistory(ctx, "s1", version, []model.Turn{{Text: "fresh"}})
	require.NoError(t, err)
	assert.True(t, stored)
	got, ok, err := c.GetHistory(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", got[0].Text)
}

// A reader that loaded turns before a write must not cache them, even once
// the dirty marker has expired.
func TestHistoryCacheRejectsFillFromBeforeInvalidate(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	readVersion, err := c.Version(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, "s1"))
	mr.FastForward(6 * time.Second)

	stored, err := c.FillHistory(ctx, "s1", readVersion, []model.Turn{{Text: "stale"}})
	require.NoError(t, err)
	assert.False(t, stored)

	_, ok, err := c.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistoryCacheRejectsFillWhileDirty(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Invalidate(ctx, "s1"))
	version, err := c.Version(ctx, "s1")
	require.NoError(t, err)

	stored, err := c.FillHistory(ctx, "s1", version, []model.Turn{{Text: "x"}})
	require.NoError(t, err)
	assert.False(t, stored)
}

func TestHistoryCacheExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, err := c.FillHistory(ctx, "s1", 0, []model.Turn{{Text: "x"}})
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.GetHistory(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}
