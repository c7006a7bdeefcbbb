package ttlcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, clock *fakeClock, ttl time.Duration, maxSize int) *Cache[string, string] {
	c := New[string, string](Config{DefaultTTL: ttl, MaxSize: maxSize, Now: clock.Now})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSetGet(t *testing.T) {
	c := newTestCache(t, newFakeClock(), time.Minute, 10)

	require.NoError(t, c.Set("a", "A"))
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
}

func TestEntryVisibleStrictlyBeforeExpiry(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, time.Minute, 10)

	require.NoError(t, c.SetWithTTL("k", "v", 10*time.Second))

	clock.Advance(10*time.Second - time.Nanosecond)
	assert.True(t, c.Has("k"))
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Nanosecond)
	assert.False(t, c.Has("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is reclaimed lazily")
}

func TestDefaultTTLApplies(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, 5*time.Second, 10)

	require.NoError(t, c.Set("k", "v"))
	exp, ok := c.ExpiresAt("k")
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(5*time.Second), exp)

	clock.Advance(5 * time.Second)
	assert.False(t, c.Has("k"))
}

func TestZeroDefaultTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, 0, 10)

	require.NoError(t, c.Set("k", "v"))
	clock.Advance(365 * 24 * time.Hour)
	assert.True(t, c.Has("k"))
}

func TestEvictsOldestCreationNotLeastRecentlyUsed(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, time.Hour, 2)

	require.NoError(t, c.Set("a", "A"))
	clock.Advance(time.Second)
	require.NoError(t, c.Set("b", "B"))

	// Reading a does not protect it.
	_, ok := c.Get("a")
	require.True(t, ok)

	clock.Advance(time.Second)
	require.NoError(t, c.Set("c", "C"))

	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))
	assert.True(t, c.Has("c"))
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestFullCacheReclaimsExpiredBeforeEvicting(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, time.Hour, 2)

	require.NoError(t, c.Set("old", "live"))
	clock.Advance(time.Second)
	require.NoError(t, c.SetWithTTL("short", "dies", time.Second))
	clock.Advance(2 * time.Second)

	require.NoError(t, c.Set("new", "N"))

	assert.True(t, c.Has("old"), "only the expired entry should go")
	assert.True(t, c.Has("new"))
	assert.Equal(t, uint64(0), c.Stats().Evictions)
}

func TestOverwriteInFullCacheEvictsNothing(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, time.Hour, 2)

	require.NoError(t, c.Set("a", "A"))
	require.NoError(t, c.Set("b", "B"))
	require.NoError(t, c.Set("a", "A2"))

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", v)
	assert.True(t, c.Has("b"))
	assert.Equal(t, 2, c.Len())

	// a was recreated, so b is now the oldest.
	require.NoError(t, c.Set("c", "C"))
	assert.False(t, c.Has("b"))
	assert.True(t, c.Has("a"))
}

func TestNeverExceedsMaxSize(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, time.Hour, 5)

	for i := 0; i < 50; i++ {
		require.NoError(t, c.Set(fmt.Sprintf("k%d", i), "v"))
		assert.LessOrEqual(t, c.Len(), 5)
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := newTestCache(t, newFakeClock(), time.Hour, 10)

	require.NoError(t, c.Set("a", "A"))
	require.NoError(t, c.Set("b", "B"))

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.False(t, c.Has("a"))

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Has("b"))
}

func TestBackgroundSweepRemovesWithoutGet(t *testing.T) {
	c := New[string, string](Config{DefaultTTL: 20 * time.Millisecond, CleanupInterval: 10 * time.Millisecond})
	defer c.Close()

	require.NoError(t, c.Set("ttl", "v"))

	assert.Eventually(t, func() bool { return c.Len() == 0 }, 500*time.Millisecond, 5*time.Millisecond)
}

func TestCloseIdempotentAndRejectsWrites(t *testing.T) {
	c := New[string, int](Config{CleanupInterval: 10 * time.Millisecond})

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Set("k", 1), ErrClosed)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int, int](Config{DefaultTTL: time.Minute, MaxSize: 64})
	defer c.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = c.Set(g*1000+i, i)
				c.Get(g*1000 + i - 1)
				c.Has(i)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}
