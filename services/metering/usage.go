package metering

import (
	"context"
	"time"

	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/services/providers"
)

// Tracker records the usage of one model call. Implementations never fail
// the caller; errors are logged and dropped.
type Tracker interface {
	Track(ctx context.Context, tenantID, modelID string, modelType models.ModelType, usage *providers.Usage)
}

// ExtractTokenUsage reads the token counters relevant to a model type.
// Embedding calls report input only. Missing or negative counters yield zero.
func ExtractTokenUsage(usage *providers.Usage, modelType models.ModelType) (int, int) {
	if usage == nil {
		return 0, 0
	}

	input := nonNegative(usage.InputTokens)
	output := nonNegative(usage.OutputTokens)

	if modelType == models.ModelTypeEmbedding {
		return input, 0
	}
	return input, output
}

// KnownModelType reports whether t is one of the metered model types
func KnownModelType(t models.ModelType) bool {
	return t == models.ModelTypeChat || t == models.ModelTypeEmbedding
}

// NewEvent builds a usage event whose totals and cost are derived from the counters
func NewEvent(prices *PriceTable, tenantID, modelID string, modelType models.ModelType, usage *providers.Usage, at time.Time) *models.UsageEvent {
	in, out := ExtractTokenUsage(usage, modelType)
	return models.NewUsageEvent(tenantID, modelID, modelType, in, out, prices.CalculateCost(modelID, in, out), at)
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
