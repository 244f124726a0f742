package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func sampleCreds(ttl int) *Credentials {
	creds := NewCredentials()
	creds.Cookies["cf_clearance"] = "tok"
	creds.TTLSeconds = ttl
	return creds
}

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if _, ok := c.Get(ctx, "site.test"); ok {
		t.Fatal("empty cache should miss")
	}
	if err := c.Set(ctx, "site.test", sampleCreds(3600)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok := c.Get(ctx, "site.test")
	if !ok || got.Cookies["cf_clearance"] != "tok" {
		t.Fatalf("get: %v, %v", got, ok)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	creds := sampleCreds(1)
	creds.ObtainedAt = time.Now().Add(-2 * time.Second)
	if err := c.Set(ctx, "site.test", creds); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := c.Get(ctx, "site.test"); ok {
		t.Fatal("expired entry should behave as absent")
	}
}

func TestMemoryCacheRemove(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	c.Set(ctx, "site.test", sampleCreds(0))
	c.Remove(ctx, "site.test")
	if _, ok := c.Get(ctx, "site.test"); ok {
		t.Fatal("removed entry should miss")
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCache(client, "")
	ctx := context.Background()

	if _, ok := c.Get(ctx, "site.test"); ok {
		t.Fatal("empty cache should miss")
	}
	if err := c.Set(ctx, "site.test", sampleCreds(3600)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok := c.Get(ctx, "site.test")
	if !ok || got.Cookies["cf_clearance"] != "tok" {
		t.Fatalf("get: %v, %v", got, ok)
	}

	// Key TTL enforcement through Redis expiry.
	mr.FastForward(2 * time.Hour)
	if _, ok := c.Get(ctx, "site.test"); ok {
		t.Fatal("entry should expire with the redis key")
	}

	c.Set(ctx, "gone.test", sampleCreds(0))
	c.Remove(ctx, "gone.test")
	if _, ok := c.Get(ctx, "gone.test"); ok {
		t.Fatal("removed entry should miss")
	}
}
