package repositories

import (
	"context"
	"errors"

	"github.com/upb/rag-query-service/models"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("record not found")

// TenantConfigRepository reads tenant vector-store configuration
type TenantConfigRepository interface {
	// Get returns the config row of a tenant, or ErrNotFound when absent.
	// A row with empty fields is returned as-is; completeness is the caller's concern.
	Get(ctx context.Context, tenantID string) (*models.TenantConfig, error)
}

// UsageEventRepository handles the append-only usage event log
type UsageEventRepository interface {
	// Insert appends a usage event
	Insert(ctx context.Context, event *models.UsageEvent) error

	// ScanPrefix returns up to limit events whose partition key begins with prefix,
	// ordered by (pk, sk) and strictly after startKey when it is non-nil.
	// The returned key is nil when no further page exists.
	ScanPrefix(ctx context.Context, prefix string, startKey *models.PageKey, limit int) ([]*models.UsageEvent, *models.PageKey, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	TenantConfigs TenantConfigRepository
	UsageEvents   UsageEventRepository
}
