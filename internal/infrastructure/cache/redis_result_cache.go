package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/remittance/internal/domain/remittance"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "remittance:reconciliation:"

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisResultCache stores each reference as one hash of JSON results keyed
// by threshold, so DEL on the hash invalidates every threshold atomically.
type RedisResultCache struct {
	client     *redis.Client
	ownsClient bool
	keyPrefix  string
	ttl        time.Duration
	logger     *zap.Logger
}

// NewRedisResultCache connects to Redis and verifies the connection.
func NewRedisResultCache(cfg RedisConfig, keyPrefix string, ttl time.Duration, logger *zap.Logger) (*RedisResultCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := NewRedisResultCacheWithClient(client, keyPrefix, ttl, logger)
	c.ownsClient = true
	return c, nil
}

// NewRedisResultCacheWithClient wraps an existing client. The caller keeps
// ownership of the client.
func NewRedisResultCacheWithClient(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisResultCache {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisResultCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

func (c *RedisResultCache) key(reference string) string {
	return c.keyPrefix + reference
}

// Get returns the cached result, or nil on a miss. A corrupt entry is
// removed and reported as an error.
func (c *RedisResultCache) Get(ctx context.Context, reference string, threshold decimal.Decimal) (*remittance.ReconciliationResult, error) {
	key := c.key(reference)
	field := thresholdField(threshold)

	data, err := c.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached reconciliation: %w", err)
	}

	var result remittance.ReconciliationResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("Dropping corrupt cached reconciliation",
			zap.String("payment_reference", reference),
			zap.Error(err),
		)
		_ = c.client.HDel(ctx, key, field).Err()
		return nil, fmt.Errorf("failed to decode cached reconciliation: %w", err)
	}
	return &result, nil
}

// Set stores result and refreshes the TTL of the reference's hash.
func (c *RedisResultCache) Set(ctx context.Context, reference string, threshold decimal.Decimal, result *remittance.ReconciliationResult) error {
	if result == nil {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode reconciliation: %w", err)
	}

	key := c.key(reference)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, thresholdField(threshold), data)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache reconciliation: %w", err)
	}
	return nil
}

// Invalidate drops every cached result for reference.
func (c *RedisResultCache) Invalidate(ctx context.Context, reference string) error {
	if err := c.client.Del(ctx, c.key(reference)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached reconciliations: %w", err)
	}
	return nil
}

// PingContext reports whether Redis is reachable
func (c *RedisResultCache) PingContext(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client if this cache created it.
func (c *RedisResultCache) Close() error {
	if !c.ownsClient {
		return nil
	}
	return c.client.Close()
}
