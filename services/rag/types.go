package rag

import (
	"context"

	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/services/retrieval"
)

// QueryInput is one verified chat request
type QueryInput struct {
	// Identity of the caller, taken from verified claims
	TenantID string
	Subject  string

	// AuthToken is the caller's credential, forwarded to the vector store
	AuthToken string

	Message   string
	History   []models.ConversationTurn
	RequestID string
}

// QueryOutput is the grounded answer and the passages it was built from
type QueryOutput struct {
	Message string
	Sources []models.Source
}

// TenantResolver loads a tenant's vector-store configuration
type TenantResolver interface {
	Resolve(ctx context.Context, tenantID string) (*models.TenantConfig, error)
}

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, tenantID, text string) ([]float64, error)
}

// Searcher looks up passages near a vector
type Searcher interface {
	Search(ctx context.Context, req retrieval.SearchRequest) (string, []models.Source)
}

// AnswerGenerator produces the answer text from a prompt and prior turns
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string, history []models.ConversationTurn, tenantID string) (string, error)
}
