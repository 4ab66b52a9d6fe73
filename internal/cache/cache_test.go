package cache

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/together/internal/models"
)

type manualTime struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualTime) Add(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func newTestCache[V any](ttl time.Duration) (*Cache[V], *manualTime) {
	mt := &manualTime{now: time.Date(2024, 2, 14, 19, 30, 0, 0, time.UTC)}
	c := New[V](ttl, 0)
	c.now = mt.Now
	return c, mt
}

func TestCacheBasicOperations(t *testing.T) {
	c, _ := newTestCache[string](5 * time.Minute)
	defer c.Stop()

	c.Set("key1", "value1")
	value, found := c.Get("key1")
	require.True(t, found)
	assert.Equal(t, "value1", value)

	_, found = c.Get("nonexistent")
	assert.False(t, found)

	c.Delete("key1")
	_, found = c.Get("key1")
	assert.False(t, found)
}

func TestCacheExpiration(t *testing.T) {
	c, mt := newTestCache[string](5 * time.Minute)
	defer c.Stop()

	c.SetWithTTL("expiring", "value", time.Second)
	c.SetWithTTL("forever", "value", 0)

	_, found := c.Get("expiring")
	assert.True(t, found)

	mt.Add(2 * time.Second)
	stats := c.GetStats()
	assert.Equal(t, 1, stats.ExpiredItems)
	assert.Equal(t, 1, stats.ValidItems)

	_, found = c.Get("expiring")
	assert.False(t, found)
	_, found = c.Get("forever")
	assert.True(t, found)
	assert.Equal(t, 1, c.Count())
}

func TestCacheDeleteExpired(t *testing.T) {
	c, mt := newTestCache[int](time.Minute)
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)
	mt.Add(30 * time.Second)
	c.Set("c", 3)
	mt.Add(45 * time.Second)

	assert.Equal(t, 2, c.deleteExpired())
	assert.Equal(t, 1, c.Count())
}

func TestCacheDeletePrefixAndClear(t *testing.T) {
	c, _ := newTestCache[string](time.Minute)
	defer c.Stop()

	c.Set("presence:1", "a")
	c.Set("presence:2", "b")
	c.Set("session:1", "c")

	assert.Equal(t, 2, c.DeletePrefix("presence:"))
	_, found := c.Get("session:1")
	assert.True(t, found)

	c.Clear()
	assert.Zero(t, c.Count())
}

func TestCacheConcurrency(t *testing.T) {
	c := New[int](5*time.Minute, 10*time.Millisecond)
	defer c.Stop()
	defer c.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(strconv.Itoa(n), j)
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Get(strconv.Itoa(n))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, c.Count())
}

func TestMemoryPresence(t *testing.T) {
	store := NewMemoryPresence(time.Minute)
	defer store.Close()
	ctx := context.Background()
	now := time.Now()

	_, ok, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	p := Presence{Position: &models.Position{Latitude: 1, Longitude: 2, CapturedAt: now}, Sharing: true, SeenAt: now}
	require.NoError(t, store.Set(ctx, 1, p))

	got, ok, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Sharing)
	assert.True(t, got.Online(now.Add(30*time.Second), time.Minute))
	assert.False(t, got.Online(now.Add(2*time.Minute), time.Minute))
	assert.Equal(t, 1, store.Stats().ValidItems)

	require.NoError(t, store.Delete(ctx, 1))
	_, ok, _ = store.Get(ctx, 1)
	assert.False(t, ok)
}

// Requiere un Redis real: REDIS_TEST_ADDR=localhost:6379 go test ./internal/cache
func TestRedisPresence(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	client, err := DialRedis(ctx, addr, os.Getenv("REDIS_TEST_PASSWORD"))
	require.NoError(t, err)
	store := NewRedisPresence(client, time.Minute)
	defer store.Close()

	const userID = 987654321
	require.NoError(t, store.Set(ctx, userID, Presence{Sharing: true, SeenAt: time.Now()}))
	got, ok, err := store.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Sharing)

	require.NoError(t, store.Delete(ctx, userID))
	_, ok, err = store.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func BenchmarkCacheGet(b *testing.B) {
	c := New[string](5*time.Minute, 0)
	c.Set("key", "value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key")
	}
}
