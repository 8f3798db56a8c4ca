package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	gwtesting "github.com/agrimesh-platform/edge-gateway/pkg/testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache() (*MemoryCache, func(time.Duration)) {
	c := NewMemoryCache(nil, discardLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	advance := func(d time.Duration) { now = now.Add(d) }
	return c, advance
}

func TestMemoryCacheSetGet(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	body := []byte(`{"fieldId":"FLD-001","moisture":0.31}`)
	if err := c.Set(ctx, "field:FLD-001", body, 30*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "field:FLD-001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want hit")
	}
	if string(got) != string(body) {
		t.Errorf("Get() = %q, want %q", got, body)
	}
}

func TestMemoryCacheMissOnAbsentKey(t *testing.T) {
	c, _ := newTestCache()

	got, ok, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok || got != nil {
		t.Errorf("Get() = (%v, %v), want miss", got, ok)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c, advance := newTestCache()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), 30*time.Second)

	advance(29 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Error("Get() missed before TTL elapsed")
	}

	advance(time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("Get() hit at TTL boundary, want miss")
	}

	// The expired read evicts the entry.
	if got := c.Stats().Entries; got != 0 {
		t.Errorf("Entries = %d after expired read, want 0", got)
	}
}

func TestMemoryCacheOverwriteRefreshesTTL(t *testing.T) {
	c, advance := newTestCache()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("old"), 10*time.Second)
	advance(8 * time.Second)
	c.Set(ctx, "k", []byte("new"), 10*time.Second)

	advance(8 * time.Second)
	got, ok, _ := c.Get(ctx, "k")
	if !ok {
		t.Fatal("Get() missed after refresh, want hit")
	}
	if string(got) != "new" {
		t.Errorf("Get() = %q, want %q", got, "new")
	}
}

func TestMemoryCacheNonPositiveTTLStoresNothing(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Set(ctx, "k2", []byte("v"), -time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if got := c.Stats().Entries; got != 0 {
		t.Errorf("Entries = %d, want 0", got)
	}
}

func TestMemoryCacheStats(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Get(ctx, "k")
	c.Get(ctx, "k")
	c.Get(ctx, "absent")

	stats := c.Stats()
	if stats.Hits != 2 {
		t.Errorf("Hits = %d, want 2", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.Entries != 1 {
		t.Errorf("Entries = %d, want 1", stats.Entries)
	}
}

func TestMemoryCacheSweep(t *testing.T) {
	c, advance := newTestCache()
	ctx := context.Background()

	c.Set(ctx, "stale-1", []byte("v"), 10*time.Second)
	c.Set(ctx, "stale-2", []byte("v"), 20*time.Second)
	c.Set(ctx, "live", []byte("v"), 10*time.Minute)

	advance(30 * time.Second)
	c.sweep()

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("Entries = %d after sweep, want 1", stats.Entries)
	}
	if _, ok, _ := c.Get(ctx, "live"); !ok {
		t.Error("live entry missing after sweep")
	}
}

func TestMemoryCacheSweeperLifecycle(t *testing.T) {
	c, advance := newTestCache()
	c.config.SweepInterval = 10 * time.Millisecond
	ctx := context.Background()

	// Expire the entry before starting the sweeper; the fake clock must not
	// move once the sweeper goroutine is reading it.
	c.Set(ctx, "k", []byte("v"), time.Second)
	advance(2 * time.Second)

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Start(ctx); err == nil {
		t.Error("second Start() error = nil, want already-running error")
	}

	gwtesting.AssertEventually(t, func() bool {
		return c.Stats().Entries == 0
	}, time.Second, "background sweeper did not reclaim the expired entry")

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := c.Stop(); err == nil {
		t.Error("second Stop() error = nil, want not-running error")
	}
}
