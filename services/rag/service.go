package rag

import (
	"context"
	"strings"
	"time"

	"github.com/upb/rag-query-service/internal/redact"
	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/services"
	"github.com/upb/rag-query-service/services/prompt"
	"github.com/upb/rag-query-service/services/retrieval"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	tracerName = "rag-query-service/rag"

	queryPreviewLength = 120
)

// Service runs the retrieval-augmented answer pipeline for one request
type Service struct {
	resolver    TenantResolver
	embedder    Embedder
	searcher    Searcher
	generator   AnswerGenerator
	searchLimit int
	logger      *zap.Logger
}

// NewService creates a new RAG service with all dependencies
func NewService(
	resolver TenantResolver,
	embedder Embedder,
	searcher Searcher,
	generator AnswerGenerator,
	searchLimit int,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		resolver:    resolver,
		embedder:    embedder,
		searcher:    searcher,
		generator:   generator,
		searchLimit: searchLimit,
		logger:      logger,
	}
}

// Query answers a message with passages from the caller's own tenant index
func (s *Service) Query(ctx context.Context, in *QueryInput) (*QueryOutput, error) {
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "rag.query",
		trace.WithAttributes(
			attribute.String("tenant.id", in.TenantID),
			attribute.String("request.id", in.RequestID),
			attribute.Int("history.turns", len(in.History)),
		),
	)
	defer span.End()

	logger := s.logger.With(
		zap.String("request_id", in.RequestID),
		zap.String("tenant_id", in.TenantID))

	logger.Info("starting query pipeline", zap.Int("history_turns", len(in.History)))
	logger.Debug("query received", zap.String("query_preview", redact.Preview(in.Message, queryPreviewLength)))

	// Step 1: Validate input
	if strings.TrimSpace(in.Message) == "" {
		err := services.NewValidationError("message is required")
		endSpan(span, err)
		return nil, err
	}

	// Step 2: Resolve tenant
	logger.Debug("step 2: resolving tenant")
	cfg, err := traced(ctx, "rag.resolve_tenant", func(ctx context.Context) (*models.TenantConfig, error) {
		return s.resolver.Resolve(ctx, in.TenantID)
	})
	if err != nil {
		endSpan(span, err)
		return nil, err
	}

	// Step 3: Embed query
	logger.Debug("step 3: embedding query")
	vector, err := traced(ctx, "rag.embed", func(ctx context.Context) ([]float64, error) {
		return s.embedder.Embed(ctx, in.TenantID, in.Message)
	})
	if err != nil {
		endSpan(span, err)
		return nil, err
	}

	// Step 4: Search tenant index. Failures degrade to an empty context.
	logger.Debug("step 4: searching tenant index", zap.String("index_name", cfg.IndexName))
	searchCtx, searchSpan := otel.Tracer(tracerName).Start(ctx, "rag.search",
		trace.WithAttributes(attribute.String("index.name", cfg.IndexName)))
	contextText, sources := s.searcher.Search(searchCtx, retrieval.SearchRequest{
		Vector:    vector,
		Config:    cfg,
		Limit:     s.searchLimit,
		AuthToken: in.AuthToken,
		TenantID:  in.TenantID,
	})
	searchSpan.SetAttributes(attribute.Int("search.hits", len(sources)))
	searchSpan.End()

	// Step 5: Compose prompt
	composed := prompt.Compose(contextText, in.Message)

	// Step 6: Generate answer
	logger.Debug("step 6: generating answer")
	answer, err := traced(ctx, "rag.generate", func(ctx context.Context) (string, error) {
		return s.generator.Generate(ctx, composed, in.History, in.TenantID)
	})
	if err != nil {
		endSpan(span, err)
		return nil, err
	}

	logger.Info("query pipeline completed",
		zap.Int("sources", len(sources)),
		zap.Duration("latency", time.Since(start)))

	return &QueryOutput{
		Message: answer,
		Sources: sources,
	}, nil
}

// traced runs fn inside a child span and records its error
func traced[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	defer span.End()

	v, err := fn(ctx)
	if err != nil {
		endSpan(span, err)
	}
	return v, err
}

func endSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
