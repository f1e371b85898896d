package handlers

import (
	"context"
	"net/http"

	"github.com/upb/rag-query-service/middleware"
	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/utils"
	"go.uber.org/zap"
)

// DashboardResponse wraps the aggregate for the current billing window
type DashboardResponse struct {
	CurrentMonth *models.DashboardAggregate `json:"current_month"`
}

// UsageAggregator sums a tenant's usage events
type UsageAggregator interface {
	Aggregate(ctx context.Context, tenantID string) (*models.DashboardAggregate, error)
}

// DashboardHandler serves the consumption dashboard
type DashboardHandler struct {
	aggregator UsageAggregator
	logger     *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(aggregator UsageAggregator, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{
		aggregator: aggregator,
		logger:     logger,
	}
}

// HandleDashboard handles GET /api/v1/consumption/dashboard
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	tenantID := middleware.GetTenantIDFromContext(ctx)

	if tenantID == "" {
		h.logger.Error("tenant not found in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, msgAuthenticationFailed)
		return
	}

	logger := h.logger.With(
		zap.String("request_id", requestID),
		zap.String("tenant_id", tenantID))

	agg, err := h.aggregator.Aggregate(ctx, tenantID)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logger.Debug("served consumption dashboard",
		zap.Int("invocations", agg.TotalInvocations),
		zap.Float64("total_cost", agg.TotalCost))

	if err := utils.WriteOK(w, DashboardResponse{CurrentMonth: agg}); err != nil {
		logger.Error("failed to write dashboard response", zap.Error(err))
	}
}
