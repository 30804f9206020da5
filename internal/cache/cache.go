package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// CachedResponse represents a cached API response
type CachedResponse struct {
	Body      []byte
	Timestamp time.Time
}

// GenerateCacheKey generates a cache key from request parts
func GenerateCacheKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Cache keeps responses for a fixed TTL. A zero TTL disables caching.
type Cache struct {
	ttl     time.Duration
	entries sync.Map // key -> CachedResponse
	now     func() time.Time
}

func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now}
}

// Get returns a copy of the cached body if it is still fresh
func (c *Cache) Get(key string) ([]byte, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	entry := v.(CachedResponse)
	if c.now().Sub(entry.Timestamp) >= c.ttl {
		c.entries.Delete(key)
		return nil, false
	}
	return append([]byte(nil), entry.Body...), true
}

func (c *Cache) Put(key string, body []byte) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.entries.Store(key, CachedResponse{
		Body:      append([]byte(nil), body...),
		Timestamp: c.now(),
	})
}
