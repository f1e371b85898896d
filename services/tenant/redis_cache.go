package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/rag-query-service/models"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "tenant_config:"

// RedisClient is the subset of redis.Cmdable the cache uses
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache caches complete tenant configs in Redis. Cache errors are logged
// and treated as misses.
type RedisCache struct {
	client RedisClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a new RedisCache
func NewRedisCache(client RedisClient, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached config of a tenant
func (c *RedisCache) Get(ctx context.Context, tenantID string) (*models.TenantConfig, bool) {
	var cfg models.TenantConfig
	err := c.client.Get(ctx, cacheKeyPrefix+tenantID).Scan(&cfg)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("tenant cache read failed", zap.Error(err), zap.String("tenant_id", tenantID))
		}
		return nil, false
	}

	if cfg.MissingField() != "" {
		return nil, false
	}
	return &cfg, true
}

// Set stores a config under the tenant it was resolved for, for the cache TTL
func (c *RedisCache) Set(ctx context.Context, tenantID string, cfg *models.TenantConfig) {
	if err := c.client.Set(ctx, cacheKeyPrefix+tenantID, cfg, c.ttl).Err(); err != nil {
		c.logger.Warn("tenant cache write failed", zap.Error(err), zap.String("tenant_id", tenantID))
	}
}
