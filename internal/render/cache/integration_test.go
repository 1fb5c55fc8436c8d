//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigil/internal/platform/config"
	platformredis "sigil/internal/platform/redis"
	"sigil/pkg/testutil/containers"
)

func newCache(t *testing.T, ttl time.Duration) *RenderCache {
	t.Helper()
	rc := containers.NewRedisContainer(t)
	client, err := platformredis.New(config.RedisConfig{URL: rc.URL})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return New(client, ttl, nil)
}

func TestRenderCache_RoundTrip(t *testing.T) {
	c := newCache(t, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)

	c.Set(ctx, 1, []byte("<svg/>"))
	image, ok := c.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, []byte("<svg/>"), image)

	// Keys are per identity.
	_, ok = c.Get(ctx, 2)
	assert.False(t, ok)

	c.Invalidate(ctx, 1)
	_, ok = c.Get(ctx, 1)
	assert.False(t, ok)
}

func TestRenderCache_EntriesExpire(t *testing.T) {
	c := newCache(t, 50*time.Millisecond)
	ctx := context.Background()

	c.Set(ctx, 1, []byte("<svg/>"))
	require.Eventually(t, func() bool {
		_, ok := c.Get(ctx, 1)
		return !ok
	}, 2*time.Second, 25*time.Millisecond)
}

func TestRenderCache_NilCacheIsNoOp(t *testing.T) {
	var c *RenderCache
	ctx := context.Background()

	c.Set(ctx, 1, []byte("<svg/>"))
	c.Invalidate(ctx, 1)
	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)
}
