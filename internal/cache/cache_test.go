package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache(100)
	defer cache.Close()
	ctx := context.Background()

	t.Run("basic operations", func(t *testing.T) {
		err := cache.SetJSON(ctx, "key1", "value1", time.Minute)
		if err != nil {
			t.Errorf("SetJSON failed: %v", err)
		}

		var value string
		if err := cache.GetJSON(ctx, "key1", &value); err != nil {
			t.Errorf("GetJSON failed: %v", err)
		}
		if value != "value1" {
			t.Errorf("Expected 'value1', got '%v'", value)
		}

		exists, err := cache.Exists(ctx, "key1")
		if err != nil {
			t.Errorf("Exists failed: %v", err)
		}
		if !exists {
			t.Error("Key should exist")
		}

		if err := cache.Delete(ctx, "key1"); err != nil {
			t.Errorf("Delete failed: %v", err)
		}

		err = cache.GetJSON(ctx, "key1", &value)
		if !errors.Is(err, ErrMiss) {
			t.Errorf("Expected ErrMiss for deleted key, got %v", err)
		}
	})

	t.Run("structured values", func(t *testing.T) {
		type report struct {
			Detected int     `json:"detected"`
			Sent     int     `json:"sent"`
			Rate     float64 `json:"rate"`
		}

		in := report{Detected: 40, Sent: 10, Rate: 0.25}
		if err := cache.SetJSON(ctx, "report", in, time.Minute); err != nil {
			t.Fatalf("SetJSON failed: %v", err)
		}

		var out report
		if err := cache.GetJSON(ctx, "report", &out); err != nil {
			t.Fatalf("GetJSON failed: %v", err)
		}
		if out != in {
			t.Errorf("Expected %+v, got %+v", in, out)
		}
	})

	t.Run("expiration", func(t *testing.T) {
		err := cache.SetJSON(ctx, "expire_key", "expire_value", 100*time.Millisecond)
		if err != nil {
			t.Errorf("SetJSON failed: %v", err)
		}

		var value string
		if err := cache.GetJSON(ctx, "expire_key", &value); err != nil {
			t.Errorf("GetJSON failed: %v", err)
		}

		time.Sleep(150 * time.Millisecond)

		err = cache.GetJSON(ctx, "expire_key", &value)
		if !errors.Is(err, ErrMiss) {
			t.Errorf("Expected ErrMiss for expired key, got %v", err)
		}
	})

	t.Run("capacity limit", func(t *testing.T) {
		smallCache := NewMemoryCache(2)
		defer smallCache.Close()

		smallCache.SetJSON(ctx, "k1", "v1", time.Minute)
		smallCache.SetJSON(ctx, "k2", "v2", time.Minute)
		smallCache.SetJSON(ctx, "k3", "v3", time.Minute)

		var value string
		err := smallCache.GetJSON(ctx, "k1", &value)
		if !errors.Is(err, ErrMiss) {
			t.Error("k1 should have been evicted")
		}

		if err := smallCache.GetJSON(ctx, "k2", &value); err != nil {
			t.Error("k2 should exist")
		}
		if err := smallCache.GetJSON(ctx, "k3", &value); err != nil {
			t.Error("k3 should exist")
		}
	})
}

func TestNewCacherDisabled(t *testing.T) {
	c, err := NewCacher(&Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewCacher failed: %v", err)
	}
	defer c.Close()

	if _, ok := c.(*MemoryCache); !ok {
		t.Errorf("Expected MemoryCache when redis is disabled, got %T", c)
	}

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func BenchmarkMemoryCacheSetGet(b *testing.B) {
	cache := NewMemoryCache(10000)
	defer cache.Close()
	ctx := context.Background()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := "bench_key"
			cache.SetJSON(ctx, key, i, time.Minute)

			var out int
			cache.GetJSON(ctx, key, &out)
			i++
		}
	})
}
