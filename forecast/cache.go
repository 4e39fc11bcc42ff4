package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ResponseCache is a short-TTL Redis cache for merged forecast
// responses. Optional: a nil *ResponseCache is a no-op, and the
// service runs fully without Redis.
//
// Invalidation is by per-series version counter: override writes and
// model activations bump the counter, which orphans every cached
// horizon for that series without pattern deletes. Callers read the
// version once per request and pass it to both Lookup and Store; a
// write that raced an invalidation then lands under a dead version
// instead of masking the newer data.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// ActivationChannel is the pub/sub channel carrying model activation
// events for downstream consumers (dashboards, cache warmers).
const ActivationChannel = "staffcast:model-activations"

// NewResponseCache connects to Redis from a URL. Returns an error only
// for an unparseable URL; an unreachable server degrades at use time.
func NewResponseCache(url string, ttl time.Duration, logger zerolog.Logger) (*ResponseCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return &ResponseCache{
		client: redis.NewClient(opts),
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (c *ResponseCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func (c *ResponseCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func (c *ResponseCache) versionKey(key SeriesKey) string {
	return fmt.Sprintf("staffcast:ver:%d:%s", key.PropertyID, key.Role)
}

func (c *ResponseCache) entryKey(key SeriesKey, ver int64, start time.Time, horizon int) string {
	return fmt.Sprintf("staffcast:fc:%d:%s:%d:%s:%d", key.PropertyID, key.Role, ver, start.Format(DateLayout), horizon)
}

// Version returns the current invalidation counter for a series.
// Failures read as zero, which simply misses.
func (c *ResponseCache) Version(ctx context.Context, key SeriesKey) int64 {
	if c == nil {
		return 0
	}
	ver, err := c.client.Get(ctx, c.versionKey(key)).Int64()
	if err != nil && err != redis.Nil {
		c.logger.Warn().Err(err).Msg("forecast cache version read failed")
		return 0
	}
	return ver
}

// Lookup returns the cached points for a request at the given series
// version, or nil on miss. Cache failures are logged and treated as
// misses.
func (c *ResponseCache) Lookup(ctx context.Context, key SeriesKey, ver int64, start time.Time, horizon int) []Point {
	if c == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, c.entryKey(key, ver, start, horizon)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("forecast cache read failed")
		}
		return nil
	}
	var points []Point
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil
	}
	cacheHits.Inc()
	return points
}

// Store caches a merged response under the version the caller observed
// before computing it. An invalidation between Version and Store leaves
// this entry unreachable rather than current.
func (c *ResponseCache) Store(ctx context.Context, key SeriesKey, ver int64, start time.Time, horizon int, points []Point) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(points)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.entryKey(key, ver, start, horizon), raw, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("forecast cache write failed")
	}
}

// InvalidateSeries bumps the series version, orphaning cached entries.
func (c *ResponseCache) InvalidateSeries(ctx context.Context, key SeriesKey) {
	if c == nil {
		return
	}
	if err := c.client.Incr(ctx, c.versionKey(key)).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("forecast cache invalidation failed")
	}
}

// PublishActivation announces a newly activated model.
func (c *ResponseCache) PublishActivation(ctx context.Context, rec *ModelRecord) {
	if c == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"model_id":    rec.ID.String(),
		"property_id": rec.Key.PropertyID,
		"role":        rec.Key.Role,
		"kind":        rec.Kind,
		"version":     rec.Version,
		"trained_at":  rec.TrainedAt.Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := c.client.Publish(ctx, ActivationChannel, payload).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("model activation publish failed")
	}
}
