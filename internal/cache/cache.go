package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache: key not found")

// Cacher defines the cache operations the pipeline uses. The analytics
// aggregator caches summary reads; the API caches status responses.
type Cacher interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// Config represents cache configuration
type Config struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewCacher creates a redis-backed cache when enabled, otherwise an
// in-process cache with the same interface.
func NewCacher(cfg *Config) (Cacher, error) {
	if cfg != nil && cfg.Enabled {
		return NewRedisCache(cfg)
	}
	return NewMemoryCache(0), nil
}
