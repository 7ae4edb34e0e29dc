package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	Text string `json:"text"`
}

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCache(rdb, "dd:"), mr
}

func TestRedisCache_MissThenHit(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	var got reply
	hit, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, "k", reply{Text: "hello"}, time.Minute))
	assert.True(t, mr.Exists("dd:k"))

	hit, err = c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "hello", got.Text)
}

func TestRedisCache_ExpiresAfterTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "k", reply{Text: "x"}, time.Hour))
	mr.FastForward(59 * time.Minute)

	var got reply
	hit, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)

	mr.FastForward(2 * time.Minute)
	hit, err = c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("dd:bad", "{not json"))

	var got reply
	hit, err := c.GetJSON(context.Background(), "bad", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, mr.Exists("dd:bad"))
}

func TestRedisCache_UnavailableReturnsError(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	var got reply
	_, err := c.GetJSON(context.Background(), "k", &got)
	assert.Error(t, err)
}

func TestRedisCache_Del(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.SetJSON(ctx, "a", reply{}, time.Minute))
	require.NoError(t, c.SetJSON(ctx, "b", reply{}, time.Minute))

	require.NoError(t, c.Del(ctx, "a", "b"))
	assert.False(t, mr.Exists("dd:a"))
	assert.False(t, mr.Exists("dd:b"))
	require.NoError(t, c.Del(ctx))
}
