package tenant

import (
	"context"
	"errors"

	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/repositories"
	"github.com/upb/rag-query-service/services"
	"go.uber.org/zap"
)

// ConfigCache is an optional read-through cache in front of the config store
type ConfigCache interface {
	Get(ctx context.Context, tenantID string) (*models.TenantConfig, bool)
	Set(ctx context.Context, tenantID string, cfg *models.TenantConfig)
}

// Resolver maps a tenant ID to its vector-store configuration
type Resolver struct {
	repo   repositories.TenantConfigRepository
	cache  ConfigCache
	logger *zap.Logger
}

// NewResolver creates a new Resolver. cache may be nil.
func NewResolver(repo repositories.TenantConfigRepository, cache ConfigCache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// Resolve returns the complete configuration of a tenant.
// It fails with a config-not-found error when no row exists and a
// config-incomplete error when the host or index is empty.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (*models.TenantConfig, error) {
	if tenantID == "" {
		return nil, services.NewConfigNotFoundError(tenantID)
	}

	if r.cache != nil {
		if cfg, ok := r.cache.Get(ctx, tenantID); ok {
			return cfg, nil
		}
	}

	cfg, err := r.repo.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			r.logger.Warn("tenant configuration not found", zap.String("tenant_id", tenantID))
			return nil, services.NewConfigNotFoundError(tenantID)
		}
		return nil, services.NewDomainError(services.ErrorTypeInternal, "failed to load tenant configuration", err).
			WithDetail("tenant_id", tenantID)
	}

	if missing := cfg.MissingField(); missing != "" {
		r.logger.Warn("tenant configuration incomplete",
			zap.String("tenant_id", tenantID),
			zap.String("missing", missing))
		return nil, services.NewConfigIncompleteError(tenantID, missing)
	}

	// The requested ID is authoritative for both the result and the cache key
	if cfg.TenantID != tenantID {
		if cfg.TenantID != "" {
			r.logger.Warn("tenant configuration row carries a different tenant id",
				zap.String("tenant_id", tenantID),
				zap.String("row_tenant_id", cfg.TenantID))
		}
		cfg.TenantID = tenantID
	}

	if r.cache != nil {
		r.cache.Set(ctx, tenantID, cfg)
	}

	r.logger.Debug("resolved tenant configuration",
		zap.String("tenant_id", tenantID),
		zap.String("store_host", cfg.StoreHost),
		zap.String("index_name", cfg.IndexName))

	return cfg, nil
}
