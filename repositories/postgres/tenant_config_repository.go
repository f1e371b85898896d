package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/repositories"
	"go.uber.org/zap"
)

// TenantConfigRepository implements the repositories.TenantConfigRepository interface
type TenantConfigRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTenantConfigRepository creates a new tenant config repository
func NewTenantConfigRepository(db *DB, logger *zap.Logger) repositories.TenantConfigRepository {
	return &TenantConfigRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the vector-store configuration row of a tenant
func (r *TenantConfigRepository) Get(ctx context.Context, tenantID string) (*models.TenantConfig, error) {
	query := `
		SELECT tenant_id, store_host, index_name
		FROM tenant_configs
		WHERE pk = $1 AND sk = $2
	`

	cfg := &models.TenantConfig{}
	err := r.db.QueryRowContext(ctx, query, models.TenantPartitionKey(tenantID), models.TenantConfigSortKey).Scan(
		&cfg.TenantID,
		&cfg.StoreHost,
		&cfg.IndexName,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant config %s: %w", tenantID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tenant config: %w", err)
	}

	r.logger.Debug("tenant config loaded", zap.String("tenant_id", tenantID))
	return cfg, nil
}
