package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestKeyStableAndDistinct(t *testing.T) {
	key1 := Key("https://example.com")
	key2 := Key("https://google.com")

	if key1 == key2 {
		t.Fatal("different URLs should generate different cache keys")
	}
	if key1 != Key("https://example.com") {
		t.Fatal("same URL should generate same cache key")
	}
	if len(key1) != 64 {
		t.Fatalf("len(Key()) = %d; want 64 hex chars", len(key1))
	}
}

func TestKeyNormalizesEquivalentURLs(t *testing.T) {
	a := Key("https://Example.com")
	b := Key("https://example.com:443/#section")
	if a != b {
		t.Fatalf("equivalent URLs produced different keys: %s vs %s", a, b)
	}
}

func TestMemoryCacheSetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Hour, 10)

	if _, ok, _ := c.Get(ctx, "missing"); ok {
		t.Fatal("Get(missing) ok = true; want false")
	}

	entry := Entry{Key: "k1", URL: "https://a.com", ImageData: "aGVsbG8="}
	if err := c.Set(ctx, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v; want hit", ok, err)
	}
	if got.ImageData != entry.ImageData {
		t.Fatalf("ImageData = %q; want %q", got.ImageData, entry.ImageData)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("CreatedAt should be stamped on Set")
	}

	if err := c.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k1"); ok {
		t.Fatal("entry still present after Delete")
	}
}

func TestMemoryCacheExpiresEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute, 0)
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, Entry{Key: "k"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	now = now.Add(30 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("entry expired too early")
	}

	now = now.Add(time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("entry should have expired")
	}
	if got := c.Len(); got != 0 {
		t.Fatalf("Len() = %d; want 0 after expiry", got)
	}
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(0, 2)

	_ = c.Set(ctx, Entry{Key: "old", CreatedAt: base})
	_ = c.Set(ctx, Entry{Key: "mid", CreatedAt: base.Add(time.Second)})
	_ = c.Set(ctx, Entry{Key: "new", CreatedAt: base.Add(2 * time.Second)})

	if got := c.Len(); got != 2 {
		t.Fatalf("Len() = %d; want 2", got)
	}
	if _, ok, _ := c.Get(ctx, "old"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	for _, k := range []string{"mid", "new"} {
		if _, ok, _ := c.Get(ctx, k); !ok {
			t.Fatalf("entry %q should still be cached", k)
		}
	}
}

func TestMemoryCacheOverwriteDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0, 2)
	_ = c.Set(ctx, Entry{Key: "a"})
	_ = c.Set(ctx, Entry{Key: "b"})
	_ = c.Set(ctx, Entry{Key: "a", ImageData: "new"})

	if got := c.Len(); got != 2 {
		t.Fatalf("Len() = %d; want 2", got)
	}
	got, ok, _ := c.Get(ctx, "a")
	if !ok || got.ImageData != "new" {
		t.Fatalf("Get(a) = %+v, %v; want overwritten entry", got, ok)
	}
}

func TestRedisCacheUnreachable(t *testing.T) {
	c := NewRedisCache("127.0.0.1:1", "", 0, "autosnapper:test:", time.Minute)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, _, err := c.Get(ctx, "k"); err == nil {
		t.Fatal("expected error from unreachable redis")
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("AUTOSNAPPER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AUTOSNAPPER_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	c := NewRedisCache(addr, "", 0, "autosnapper:test:", time.Minute)
	defer c.Close()
	if err := c.Ping(ctx); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	key := Key("https://example.com/redis-round-trip")
	t.Cleanup(func() { _ = c.Delete(context.Background(), key) })

	if err := c.Set(ctx, Entry{Key: key, URL: "https://example.com/redis-round-trip", ImageData: "cG5n"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v; want hit", ok, err)
	}
	if got.ImageData != "cG5n" {
		t.Fatalf("ImageData = %q; want %q", got.ImageData, "cG5n")
	}

	if err := c.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, key); ok {
		t.Fatal("entry still present after Delete")
	}
}
