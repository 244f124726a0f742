package challenge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"kumo/internal/errs"
)

// Cache stores obtained credentials per domain. Stale entries behave
// as absent.
type Cache interface {
	Get(ctx context.Context, domain string) (*Credentials, bool)
	Set(ctx context.Context, domain string, creds *Credentials) error
	Remove(ctx context.Context, domain string)
}

// MemoryCache is the default in-process cache: a read/write-locked
// map. Readers proceed concurrently; expiry is checked on read and
// stale entries are evicted lazily.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Credentials
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]*Credentials{}}
}

func (c *MemoryCache) Get(_ context.Context, domain string) (*Credentials, bool) {
	c.mu.RLock()
	creds, ok := c.entries[domain]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if creds.IsExpired() {
		c.mu.Lock()
		// Re-check under the write lock before evicting.
		if cur, ok := c.entries[domain]; ok && cur.IsExpired() {
			delete(c.entries, domain)
		}
		c.mu.Unlock()
		return nil, false
	}
	return creds, true
}

func (c *MemoryCache) Set(_ context.Context, domain string, creds *Credentials) error {
	c.mu.Lock()
	c.entries[domain] = creds
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Remove(_ context.Context, domain string) {
	c.mu.Lock()
	delete(c.entries, domain)
	c.mu.Unlock()
}

// RedisCache shares credentials across processes through Redis, with
// TTLs enforced by key expiry.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps a Redis client. An empty prefix defaults to
// "kumo:challenge:".
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "kumo:challenge:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(domain string) string { return c.prefix + domain }

func (c *RedisCache) Get(ctx context.Context, domain string) (*Credentials, bool) {
	raw, err := c.client.Get(ctx, c.key(domain)).Bytes()
	if err != nil {
		return nil, false
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, false
	}
	if creds.IsExpired() {
		c.Remove(ctx, domain)
		return nil, false
	}
	return &creds, true
}

func (c *RedisCache) Set(ctx context.Context, domain string, creds *Credentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return errs.Wrap(errs.KindChallengeFailed, err, "serialize credentials for %s", domain)
	}
	var ttl time.Duration
	if creds.TTLSeconds > 0 {
		ttl = time.Duration(creds.TTLSeconds) * time.Second
	}
	if err := c.client.Set(ctx, c.key(domain), raw, ttl).Err(); err != nil {
		return errs.Wrap(errs.KindChallengeFailed, err, "store credentials for %s", domain)
	}
	return nil
}

func (c *RedisCache) Remove(ctx context.Context, domain string) {
	c.client.Del(ctx, c.key(domain))
}
