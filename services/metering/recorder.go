package metering

import (
	"context"
	"time"

	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/repositories"
	"github.com/upb/rag-query-service/services/providers"
	"go.uber.org/zap"
)

// defaultWriteTimeout bounds a single usage write
const defaultWriteTimeout = 5 * time.Second

// Recorder persists usage events synchronously
type Recorder struct {
	repo    repositories.UsageEventRepository
	prices  *PriceTable
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewRecorder creates a new Recorder. A nil price table uses the built-in rates.
func NewRecorder(repo repositories.UsageEventRepository, prices *PriceTable, metrics *Metrics, logger *zap.Logger) *Recorder {
	if prices == nil {
		prices = DefaultPriceTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		repo:    repo,
		prices:  prices,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Prices returns the table used to price events
func (r *Recorder) Prices() *PriceTable {
	return r.prices
}

// Store appends one event. It reports whether the write succeeded and never returns an error.
func (r *Recorder) Store(ctx context.Context, event *models.UsageEvent) bool {
	if event == nil {
		return false
	}

	if err := r.repo.Insert(ctx, event); err != nil {
		r.metrics.recordFailure(ctx)
		r.logger.Error("failed to store usage event",
			zap.Error(err),
			zap.String("tenant_id", event.TenantID),
			zap.String("model_id", event.ModelID),
			zap.String("event_id", event.EventID.String()))
		return false
	}

	r.metrics.recordStored(ctx, event)
	r.logger.Info("stored usage event",
		zap.String("tenant_id", event.TenantID),
		zap.String("model_id", event.ModelID),
		zap.String("model_type", string(event.ModelType)),
		zap.Int("total_tokens", event.TotalTokens),
		zap.Float64("estimated_cost", event.EstimatedCost))
	return true
}

// Track builds the event for one call and stores it before returning.
// The write outlives cancellation of ctx but is bounded by its own timeout.
func (r *Recorder) Track(ctx context.Context, tenantID, modelID string, modelType models.ModelType, usage *providers.Usage) {
	event := r.Build(tenantID, modelID, modelType, usage)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultWriteTimeout)
	defer cancel()

	r.Store(writeCtx, event)
}

// Build prices the call and stamps it with the current time
func (r *Recorder) Build(tenantID, modelID string, modelType models.ModelType, usage *providers.Usage) *models.UsageEvent {
	if !KnownModelType(modelType) {
		r.logger.Warn("unknown model type, reading all token counters",
			zap.String("model_type", string(modelType)),
			zap.String("model_id", modelID))
	}
	return NewEvent(r.prices, tenantID, modelID, modelType, usage, r.now())
}
