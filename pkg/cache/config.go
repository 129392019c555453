package cache

import (
	"time"

	"github.com/creasty/defaults"
)

// RedisConfig describes the shared bar cache. Keys are namespaced by Prefix
// so several FieldScan deployments can share one Redis database.
type RedisConfig struct {
	Host         string `default:"localhost"`
	Port         int    `default:"6379"`
	Password     string
	DB           int
	PoolSize     int           `default:"10"`
	PoolTimeout  time.Duration `default:"30s"`
	MinIdleConns int           `default:"5"`
	Prefix       string        `default:"fieldscan"`
}

// RedisOption configures RedisCache.
type RedisOption func(*RedisConfig)

// WithRedisAddr sets host and port. Empty or zero values keep the defaults.
func WithRedisAddr(host string, port int) RedisOption {
	return func(c *RedisConfig) {
		if host != "" {
			c.Host = host
		}
		if port > 0 {
			c.Port = port
		}
	}
}

// WithRedisAuth selects the database and its password.
func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
		c.DB = db
	}
}

func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		if prefix != "" {
			c.Prefix = prefix
		}
	}
}

// MemoryConfig describes the in-process cache. With Redis disabled it holds
// every fetched series, so MaxSize should cover the scan universe.
type MemoryConfig struct {
	MaxSize         int           `default:"1000"`
	CleanupInterval time.Duration `default:"5m"`
	Clock           func() time.Time
}

// MemoryOption configures MemoryCache.
type MemoryOption func(*MemoryConfig)

func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		if size > 0 {
			c.MaxSize = size
		}
	}
}

// WithMemoryClock overrides the time source, mainly for expiry tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *MemoryConfig) { c.Clock = now }
}

// LayeredConfig sizes the L1 copy kept in front of Redis.
type LayeredConfig struct {
	MemoryMaxSize int           `default:"1000"`
	MemoryTTL     time.Duration `default:"1m"`
}

// LayeredOption configures LayeredCache.
type LayeredOption func(*LayeredConfig)

func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *LayeredConfig) {
		if size > 0 {
			c.MemoryMaxSize = size
		}
	}
}

// WithLayeredMemoryTTL caps how long an L1 copy lives regardless of the L2 TTL.
func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(c *LayeredConfig) {
		if ttl > 0 {
			c.MemoryTTL = ttl
		}
	}
}

// The default tags above are literals, so defaults.Set cannot fail on these types.

func newRedisConfig(opts []RedisOption) *RedisConfig {
	cfg := &RedisConfig{}
	_ = defaults.Set(cfg)
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func newMemoryConfig(opts []MemoryOption) *MemoryConfig {
	cfg := &MemoryConfig{}
	_ = defaults.Set(cfg)
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func newLayeredConfig(opts []LayeredOption) *LayeredConfig {
	cfg := &LayeredConfig{}
	_ = defaults.Set(cfg)
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
