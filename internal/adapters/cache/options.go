package cache

import (
	"time"

	"github.com/okian/laptrace/pkg/logger"
)

// Option applies a configuration option to the SessionCache.
type Option func(*SessionCache)

// WithMaxSize bounds the number of memoized sessions. Values below 1 are ignored.
func WithMaxSize(n int) Option {
	return func(c *SessionCache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithTTL expires entries after ttl. Zero keeps entries until they are evicted.
func WithTTL(ttl time.Duration) Option {
	return func(c *SessionCache) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(l logger.Logger) Option {
	return func(c *SessionCache) {
		if l != nil {
			c.logger = l
		}
	}
}
