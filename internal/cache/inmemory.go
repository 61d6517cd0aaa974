package cache

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	goCache "github.com/patrickmn/go-cache"
	"github.com/shahin-grc/serialcode/internal/config"
)

const (
	DefaultExpiration      = 30 * time.Minute
	DefaultCleanupInterval = time.Hour
)

// InMemoryCache is a process local Cache backed by go-cache. Each replica
// keeps its own copy, which is safe because only immutable values are stored.
type InMemoryCache struct {
	cache *goCache.Cache
}

// NewInMemoryCache uses the reservation cache ttl as default expiration
func NewInMemoryCache(cfg *config.Configuration) Cache {
	expiration := DefaultExpiration
	if cfg != nil && cfg.SerialCode.ReservationCacheTTL > 0 {
		expiration = cfg.SerialCode.ReservationCacheTTL
	}
	return &InMemoryCache{
		cache: goCache.New(expiration, DefaultCleanupInterval),
	}
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, bool) {
	span := startSpan(ctx, "get", key)
	value, found := c.cache.Get(key)
	finishSpan(span, found)
	return value, found
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) {
	span := startSpan(ctx, "set", key)
	if expiration == 0 {
		expiration = goCache.DefaultExpiration
	}
	c.cache.Set(key, value, expiration)
	finishSpan(span, true)
}

func (c *InMemoryCache) Delete(_ context.Context, key string) {
	c.cache.Delete(key)
}

func (c *InMemoryCache) Flush(_ context.Context) {
	c.cache.Flush()
}

// startSpan returns nil when ctx carries no sentry hub
func startSpan(ctx context.Context, operation, key string) *sentry.Span {
	if sentry.GetHubFromContext(ctx) == nil {
		return nil
	}

	span := sentry.StartSpan(ctx, "cache.inmemory."+operation)
	span.Op = "cache." + operation
	span.Description = key
	return span
}

func finishSpan(span *sentry.Span, hit bool) {
	if span == nil {
		return
	}
	span.SetData("cache.hit", hit)
	span.Status = sentry.SpanStatusOK
	span.Finish()
}
