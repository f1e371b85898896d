package embedding

import (
	"context"
	"errors"

	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/services"
	"github.com/upb/rag-query-service/services/metering"
	"github.com/upb/rag-query-service/services/providers"
	"go.uber.org/zap"
)

var errEmptyVector = errors.New("model returned an empty embedding")

// Client turns query text into a vector with the configured embedding model
type Client struct {
	model   providers.ModelClient
	modelID string
	tracker metering.Tracker
	logger  *zap.Logger
}

// NewClient creates a new embedding client
func NewClient(model providers.ModelClient, modelID string, tracker metering.Tracker, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		model:   model,
		modelID: modelID,
		tracker: tracker,
		logger:  logger,
	}
}

// ModelID returns the embedding model identifier
func (c *Client) ModelID() string {
	return c.modelID
}

// Embed returns the embedding of text. Usage is recorded for every response
// the model returns, including one with an empty vector.
func (c *Client) Embed(ctx context.Context, tenantID, text string) ([]float64, error) {
	resp, err := c.model.Embed(ctx, &providers.EmbeddingRequest{
		Model: c.modelID,
		Input: text,
	})
	if err != nil {
		c.logger.Error("embedding call failed",
			zap.Error(err),
			zap.String("tenant_id", tenantID),
			zap.String("model_id", c.modelID),
			zap.Int("status_code", providers.StatusCode(err)))
		return nil, services.NewEmbeddingError(err).WithDetail("tenant_id", tenantID)
	}

	if c.tracker != nil {
		c.tracker.Track(ctx, tenantID, c.modelID, models.ModelTypeEmbedding, resp.Usage)
	}

	if len(resp.Embedding) == 0 {
		c.logger.Error("embedding response had no vector",
			zap.String("tenant_id", tenantID),
			zap.String("model_id", c.modelID))
		return nil, services.NewEmbeddingError(errEmptyVector).WithDetail("tenant_id", tenantID)
	}

	c.logger.Debug("generated embedding",
		zap.String("tenant_id", tenantID),
		zap.Int("dimensions", len(resp.Embedding)),
		zap.Duration("latency", resp.Latency))

	return resp.Embedding, nil
}
