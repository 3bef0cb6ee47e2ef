package rcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jixoai/openspecui-kernel/internal/rcache"
)

func TestGetPutRoundTrip(t *testing.T) {
	c := rcache.New()
	key := rcache.Key{Op: "read-file", Path: "/ws/openspec/config.yaml"}

	_, ok := rcache.Get[string](c, key)
	assert.False(t, ok)

	rcache.Put(c, key, "hello")
	v, ok := rcache.Get[string](c, key)
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestInvalidateExactPath(t *testing.T) {
	c := rcache.New()
	key := rcache.Key{Op: "read-file", Path: "/ws/openspec/config.yaml"}
	rcache.Put(c, key, "v1")

	dropped := c.Invalidate("/ws/openspec/config.yaml")
	assert.Len(t, dropped, 1)
	_, ok := rcache.Get[string](c, key)
	assert.False(t, ok)
}

func TestInvalidateDescendants(t *testing.T) {
	c := rcache.New()
	child := rcache.Key{Op: "read-file", Path: "/ws/openspec/changes/add-caching/.openspec.yaml"}
	rcache.Put(c, child, "meta")

	dropped := c.Invalidate("/ws/openspec/changes/add-caching")
	assert.Len(t, dropped, 1)
	_, ok := rcache.Get[string](c, child)
	assert.False(t, ok)
}

func TestInvalidateUnrelatedPathLeavesCacheAlone(t *testing.T) {
	c := rcache.New()
	key := rcache.Key{Op: "read-file", Path: "/ws/openspec/changes/a/.openspec.yaml"}
	rcache.Put(c, key, "meta")

	dropped := c.Invalidate("/ws/openspec/changes/b")
	assert.Empty(t, dropped)
	v, ok := rcache.Get[string](c, key)
	assert.True(t, ok)
	assert.Equal(t, "meta", v)
}

func TestClear(t *testing.T) {
	c := rcache.New()
	rcache.Put(c, rcache.Key{Op: "stat", Path: "/ws"}, true)
	assert.Equal(t, 1, c.Len())
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
