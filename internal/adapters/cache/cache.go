// Package cache memoizes sessions in front of a telemetry.SessionProvider.
//
// Entries are bounded by count with least-recently-used eviction and expire
// after a TTL. Concurrent misses for the same key share one upstream fetch.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/okian/laptrace/internal/domain/telemetry"
	"github.com/okian/laptrace/pkg/logger"
	"github.com/okian/laptrace/pkg/metrics"
)

const (
	defaultMaxSize = 128
	defaultTTL     = time.Hour
)

// SessionCache is a memoizing telemetry.SessionProvider decorator.
type SessionCache struct {
	upstream telemetry.SessionProvider
	group    singleflight.Group
	lru      *expirable.LRU[telemetry.SessionKey, *telemetry.Session]

	maxSize int
	ttl     time.Duration
	logger  logger.Logger
}

var _ telemetry.SessionProvider = (*SessionCache)(nil)

// New wraps upstream with a bounded, expiring session cache.
func New(upstream telemetry.SessionProvider, opts ...Option) *SessionCache {
	c := &SessionCache{
		upstream: upstream,
		maxSize:  defaultMaxSize,
		ttl:      defaultTTL,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// A zero TTL makes the LRU keep entries until they are evicted.
	c.lru = expirable.NewLRU[telemetry.SessionKey, *telemetry.Session](c.maxSize, c.evicted, c.ttl)
	metrics.UpdateCacheSize(0)
	return c
}

// evicted runs under the LRU's lock for every entry it drops, whether pushed
// out by size, expired, invalidated or purged.
func (c *SessionCache) evicted(key telemetry.SessionKey, _ *telemetry.Session) {
	metrics.RecordCacheEviction()
	c.logger.Debug(context.Background(), "session evicted", logger.String("session", key.String()))
}

// Fetch returns the memoized session or loads it from upstream. Failed loads
// are not cached.
func (c *SessionCache) Fetch(ctx context.Context, key telemetry.SessionKey) (*telemetry.Session, error) {
	if s, ok := c.lru.Get(key); ok {
		metrics.RecordCacheHit()
		return s, nil
	}
	metrics.RecordCacheMiss()

	// The flight outlives any single caller, so it runs detached from ctx.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		// A concurrent flight may have filled the entry already.
		if s, ok := c.lru.Get(key); ok {
			return s, nil
		}
		s, err := c.upstream.Fetch(flightCtx, key)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, s)
		metrics.UpdateCacheSize(c.lru.Len())
		return s, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			c.logger.Debug(ctx, "session load failed",
				logger.String("session", key.String()),
				logger.Error(r.Err),
			)
			return nil, r.Err
		}
		return r.Val.(*telemetry.Session), nil
	}
}

// Invalidate drops a single session.
func (c *SessionCache) Invalidate(key telemetry.SessionKey) {
	c.lru.Remove(key)
	metrics.UpdateCacheSize(c.lru.Len())
}

// Purge drops every session.
func (c *SessionCache) Purge() {
	c.lru.Purge()
	metrics.UpdateCacheSize(0)
}

// Len returns the number of memoized sessions.
func (c *SessionCache) Len() int {
	return c.lru.Len()
}
