package cache

import (
	"fmt"

	"github.com/erp/remittance/internal/domain/remittance"
	"github.com/erp/remittance/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Backends accepted by cache.backend
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ResultCacheFactory builds the configured result cache
type ResultCacheFactory struct {
	cacheConfig           config.CacheConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*ResultCacheFactory)

// WithLogger sets the logger for the factory and the caches it builds
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *ResultCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to the
// in-memory cache. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *ResultCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewResultCacheFactory creates a new factory
func NewResultCacheFactory(cacheCfg config.CacheConfig, redisCfg config.RedisConfig, opts ...FactoryOption) *ResultCacheFactory {
	f := &ResultCacheFactory{
		cacheConfig:           cacheCfg,
		redisConfig:           redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns the cache selected by cache.backend. It returns (nil, nil)
// for the none backend.
func (f *ResultCacheFactory) Create() (remittance.ResultCache, error) {
	switch f.cacheConfig.Backend {
	case BackendNone:
		f.logger.Info("Reconciliation result cache disabled")
		return nil, nil

	case BackendMemory, "":
		f.logger.Info("Using in-memory reconciliation result cache", zap.Duration("ttl", f.cacheConfig.TTL))
		return f.newInMemory(), nil

	case BackendRedis:
		c, err := NewRedisResultCache(RedisConfig{
			Addr:     f.redisConfig.Addr(),
			Password: f.redisConfig.Password,
			DB:       f.redisConfig.DB,
		}, f.cacheConfig.Prefix, f.cacheConfig.TTL, f.logger)
		if err == nil {
			f.logger.Info("Using Redis reconciliation result cache", zap.String("addr", f.redisConfig.Addr()))
			return c, nil
		}
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis result cache unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory result cache. "+
			"Instances will not share cached reconciliations.",
			zap.Error(err),
		)
		return f.newInMemory(), nil

	default:
		return nil, fmt.Errorf("unknown cache backend %q", f.cacheConfig.Backend)
	}
}

func (f *ResultCacheFactory) newInMemory() *InMemoryResultCache {
	return NewInMemoryResultCache(f.cacheConfig.TTL, WithInMemoryLogger(f.logger))
}

var (
	_ remittance.ResultCache = (*InMemoryResultCache)(nil)
	_ remittance.ResultCache = (*RedisResultCache)(nil)
)
