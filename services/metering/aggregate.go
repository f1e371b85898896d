package metering

import (
	"context"

	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/repositories"
	"github.com/upb/rag-query-service/services"
	"go.uber.org/zap"
)

// AggregatorConfig bounds the prefix scan
type AggregatorConfig struct {
	PageSize int
	MaxPages int
}

// DefaultAggregatorConfig returns the default scan bounds
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		PageSize: 500,
		MaxPages: 100,
	}
}

// Aggregator builds dashboard aggregates from stored usage events
type Aggregator struct {
	repo   repositories.UsageEventRepository
	config AggregatorConfig
	logger *zap.Logger
}

// NewAggregator creates a new Aggregator
func NewAggregator(repo repositories.UsageEventRepository, config AggregatorConfig, logger *zap.Logger) *Aggregator {
	defaults := DefaultAggregatorConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{repo: repo, config: config, logger: logger}
}

// Aggregate sums every usage event of a tenant. Pages are followed until the
// store reports no further key or the page cap is reached, in which case the
// partial aggregate is returned. No events yield the all-zero aggregate.
func (a *Aggregator) Aggregate(ctx context.Context, tenantID string) (*models.DashboardAggregate, error) {
	agg := models.NewDashboardAggregate()
	prefix := models.UsagePrefix(tenantID)

	var startKey *models.PageKey
	pages := 0
	for {
		events, next, err := a.repo.ScanPrefix(ctx, prefix, startKey, a.config.PageSize)
		if err != nil {
			return nil, services.NewDomainError(services.ErrorTypeInternal, "failed to scan usage events", err).
				WithDetail("tenant_id", tenantID)
		}
		pages++

		for _, e := range events {
			agg.Add(e)
		}

		if next == nil {
			break
		}
		if pages >= a.config.MaxPages {
			a.logger.Warn("usage scan page cap reached, returning partial aggregate",
				zap.String("tenant_id", tenantID),
				zap.Int("pages", pages),
				zap.Int("events", agg.TotalInvocations))
			break
		}
		startKey = next
	}

	agg.TotalCost = RoundCost(agg.TotalCost)
	for _, usage := range agg.ModelBreakdown {
		usage.Cost = RoundCost(usage.Cost)
	}

	a.logger.Info("aggregated usage events",
		zap.String("tenant_id", tenantID),
		zap.Int("total_invocations", agg.TotalInvocations),
		zap.Float64("total_cost", agg.TotalCost),
		zap.Int("pages", pages))

	return agg, nil
}
