package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wastewater/internal/log"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestCache(maxSize int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2023, 4, 10, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](maxSize, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUCache_GetSet(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	c.Set("a", "1")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clock := newTestCache(2, time.Minute)

	c.Set("a", "1")
	clock.t = clock.t.Add(time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok, "b should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCache_DeleteAndPurge(t *testing.T) {
	c, _ := newTestCache(3, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	c.Delete("a")
	assert.Equal(t, 1, c.Size())

	c.Purge()
	assert.Equal(t, 0, c.Size())
	c.Set("c", "3")
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_CleanExpired(t *testing.T) {
	c, clock := newTestCache(3, time.Minute)
	c.Set("a", "1")
	clock.t = clock.t.Add(30 * time.Second)
	c.Set("b", "2")
	clock.t = clock.t.Add(45 * time.Second)

	assert.Equal(t, 1, c.CleanExpired())
	_, ok := c.Get("b")
	assert.True(t, ok)
}

func TestManager(t *testing.T) {
	logger := log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
	c, clock := newTestCache(3, time.Minute)
	c.Set("a", "1")
	clock.t = clock.t.Add(2 * time.Minute)

	m := NewManager(logger)
	m.Register(c)
	assert.Equal(t, 1, m.CleanNow())

	assert.False(t, m.Running())
	m.Start(context.Background(), time.Millisecond)
	m.Start(context.Background(), time.Millisecond)
	assert.True(t, m.Running())
	m.Stop()
	assert.False(t, m.Running())
	m.Stop()

	var idle Manager
	idle.Stop()
}
