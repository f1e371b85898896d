package metering

import (
	"context"

	"github.com/upb/rag-query-service/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "rag-query-service/metering"

// Metrics holds the metering instruments. They are no-ops unless a meter provider is installed.
type Metrics struct {
	Tokens        metric.Int64Counter
	Cost          metric.Float64Counter
	StoreFailures metric.Int64Counter
	Dropped       metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Tokens, err = meter.Int64Counter("rag.usage.tokens",
		metric.WithDescription("Metered model tokens"))
	if err != nil {
		return nil, err
	}

	m.Cost, err = meter.Float64Counter("rag.usage.cost_usd",
		metric.WithDescription("Estimated model cost in USD"))
	if err != nil {
		return nil, err
	}

	m.StoreFailures, err = meter.Int64Counter("rag.usage.store_failures",
		metric.WithDescription("Usage events that could not be persisted"))
	if err != nil {
		return nil, err
	}

	m.Dropped, err = meter.Int64Counter("rag.usage.dropped",
		metric.WithDescription("Usage events dropped because the buffer was full"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) recordStored(ctx context.Context, e *models.UsageEvent) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model_id", e.ModelID),
		attribute.String("model_type", string(e.ModelType)),
	)
	m.Tokens.Add(ctx, int64(e.TotalTokens), attrs)
	m.Cost.Add(ctx, e.EstimatedCost, attrs)
}

func (m *Metrics) recordFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.StoreFailures.Add(ctx, 1)
}

func (m *Metrics) recordDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.Dropped.Add(ctx, 1)
}
