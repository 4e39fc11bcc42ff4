package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *ResponseCache {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := NewResponseCache("redis://"+mr.Addr(), time.Minute, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	start := Day(time.Now())
	points := []Point{
		{Day: start, Predicted: 19, Lower: 15, Upper: 23},
		{Day: start.AddDate(0, 0, 1), Predicted: 25, Lower: 15, Upper: 23, IsOverride: true},
	}

	ver := cache.Version(ctx, testKey)
	cache.Store(ctx, testKey, ver, start, 2, points)

	got := cache.Lookup(ctx, testKey, ver, start, 2)
	assert.Equal(t, points, got)

	// A different horizon is a different entry.
	assert.Nil(t, cache.Lookup(ctx, testKey, ver, start, 7))
}

func TestCacheStaleWriteOrphanedByInvalidation(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	start := Day(time.Now())
	stale := []Point{{Day: start, Predicted: 19, Lower: 15, Upper: 23}}

	// A request observes the version, then an override lands before the
	// request finishes computing its response.
	ver := cache.Version(ctx, testKey)
	cache.InvalidateSeries(ctx, testKey)
	cache.Store(ctx, testKey, ver, start, 1, stale)

	// The late write sits under the dead version; current readers miss.
	current := cache.Version(ctx, testKey)
	assert.Greater(t, current, ver)
	assert.Nil(t, cache.Lookup(ctx, testKey, current, start, 1))
	assert.Equal(t, stale, cache.Lookup(ctx, testKey, ver, start, 1))
}

func TestNilCacheIsNoOp(t *testing.T) {
	var cache *ResponseCache
	ctx := context.Background()
	start := Day(time.Now())

	assert.Equal(t, int64(0), cache.Version(ctx, testKey))
	assert.Nil(t, cache.Lookup(ctx, testKey, 0, start, 7))
	cache.Store(ctx, testKey, 0, start, 7, nil)
	cache.InvalidateSeries(ctx, testKey)
	cache.PublishActivation(ctx, &ModelRecord{})
	assert.NoError(t, cache.Ping(ctx))
	assert.NoError(t, cache.Close())
}

func TestOverrideVisibleThroughCache(t *testing.T) {
	f := newServiceFixture(t)
	f.seedWeek(t, []float64{18, 19, 17, 20, 22, 18, 19})
	cache := newTestCache(t)
	f.svc = NewService(f.history, f.overrides, f.registry, cache, zerolog.Nop(), ServiceOptions{})
	ctx := context.Background()

	first, err := f.svc.GetForecast(ctx, testKey, f.today, 7)
	require.NoError(t, err)

	// Second request is served from cache.
	cached, err := f.svc.GetForecast(ctx, testKey, f.today, 7)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	day := f.today.AddDate(0, 0, 2)
	_, err = f.svc.SetOverride(ctx, testKey, day, 25, "gm-ana", "")
	require.NoError(t, err)

	// The accepted override must be visible immediately, not after TTL.
	after, err := f.svc.GetForecast(ctx, testKey, f.today, 7)
	require.NoError(t, err)
	assert.Equal(t, 25.0, after[2].Predicted)
	assert.True(t, after[2].IsOverride)
}
