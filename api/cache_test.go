package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentCacheInvalidateOrphansInFlightLoad(t *testing.T) {
	c, err := newContentCache(time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.close() })

	// A reader scopes its key, then a mutation lands while it is loading.
	key := c.scoped(cacheKeyPosts)
	c.invalidate()
	c.set(key, []byte(`["stale"]`))

	_, ok := c.get(c.scoped(cacheKeyPosts))
	assert.False(t, ok)

	fresh := c.scoped(cacheKeyPosts)
	c.set(fresh, []byte(`["fresh"]`))
	body, ok := c.get(c.scoped(cacheKeyPosts))
	require.True(t, ok)
	assert.Equal(t, `["fresh"]`, string(body))
}

func TestContentCacheNil(t *testing.T) {
	var c *contentCache
	assert.Equal(t, cacheKeyPosts, c.scoped(cacheKeyPosts))
	c.set("k", []byte("v"))
	_, ok := c.get("k")
	assert.False(t, ok)
	c.invalidate()
	assert.NoError(t, c.close())
}
