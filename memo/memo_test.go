package memo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	c, err := New[string](16)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", "/tmp/a.dat")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "/tmp/a.dat", v)

	c.Del("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestDisabled(t *testing.T) {
	c, err := New[int](0)
	require.NoError(t, err)

	c.Set("a", 1)
	_, ok := c.Get("a")
	assert.False(t, ok)

	var nilCache *Cache[int]
	nilCache.Set("a", 1)
	_, ok = nilCache.Get("a")
	assert.False(t, ok)
}
