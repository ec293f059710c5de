// Package cache implements the single-flight + TTL pattern the catalog
// client's upcoming-launches lookup and the FDV calculator's USD-quote
// lookup both need: one mutex guarding a {cached, inflight} pair, so
// concurrent callers share one in-flight fetch and a fresh value is
// served from cache until it expires.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TTL caches the result of a single named fetch for a fixed duration,
// coalescing concurrent misses via singleflight.
type TTL[T any] struct {
	ttl   time.Duration
	group singleflight.Group

	mu        sync.Mutex
	value     T
	haveValue bool
	expiresAt time.Time
}

// NewTTL builds a cache whose entries are valid for ttl.
func NewTTL[T any](ttl time.Duration) *TTL[T] {
	return &TTL[T]{ttl: ttl}
}

// Get returns the cached value if still fresh, otherwise calls fetch
// exactly once across any concurrently-blocked callers and caches the
// result. On fetch error the stale cached value (if any) is NOT
// returned here — callers that want graceful degradation to a stale
// value should use GetOrStale.
func (c *TTL[T]) Get(key string, fetch func() (T, error)) (T, error) {
	if v, ok := c.fresh(); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.fresh(); ok {
			return v, nil
		}
		fresh, err := fetch()
		if err != nil {
			return fresh, err
		}
		c.store(fresh)
		return fresh, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// GetOrStale behaves like Get but on a fetch error returns the last
// cached value (possibly stale) if one exists, with a stale=true flag;
// used by the FDV USD-quote cache, which must degrade rather than fail.
func (c *TTL[T]) GetOrStale(key string, fetch func() (T, error)) (value T, stale bool, err error) {
	v, fetchErr := c.Get(key, fetch)
	if fetchErr == nil {
		return v, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haveValue {
		return c.value, true, nil
	}
	var zero T
	return zero, false, fetchErr
}

func (c *TTL[T]) fresh() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haveValue && time.Now().Before(c.expiresAt) {
		return c.value, true
	}
	var zero T
	return zero, false
}

func (c *TTL[T]) store(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.haveValue = true
	c.expiresAt = time.Now().Add(c.ttl)
}
