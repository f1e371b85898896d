package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/utils"
	"go.uber.org/zap"
)

const (
	defaultLimit         = 5
	defaultSnippetLength = 200
	maxResponseBytes     = 16 << 20

	sourceTitle   = "Document"
	unknownTenant = "unknown"
)

// Config holds retriever settings
type Config struct {
	Scheme         string
	DefaultLimit   int
	SnippetLength  int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// SearchRequest describes one k-NN lookup against a tenant index
type SearchRequest struct {
	Vector    []float64
	Config    *models.TenantConfig
	Limit     int
	AuthToken string
	TenantID  string
}

// Retriever runs vector searches against the tenant's OpenSearch index.
// Search never fails the caller; store errors degrade to an empty context.
type Retriever struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRetriever creates a new Retriever
func NewRetriever(config Config, logger *zap.Logger) *Retriever {
	if config.Scheme == "" {
		config.Scheme = "https"
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = defaultLimit
	}
	if config.SnippetLength <= 0 {
		config.SnippetLength = defaultSnippetLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		config:     config,
		httpClient: utils.NewHTTPClient(config.ConnectTimeout, config.ReadTimeout),
		logger:     logger,
	}
}

type knnQuery struct {
	Vector []float64 `json:"vector"`
	K      int       `json:"k"`
}

type searchBody struct {
	Size  int `json:"size"`
	Query struct {
		Nested struct {
			ScoreMode string `json:"score_mode"`
			Path      string `json:"path"`
			Query     struct {
				KNN map[string]knnQuery `json:"knn"`
			} `json:"query"`
		} `json:"nested"`
	} `json:"query"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source struct {
				Body     string `json:"body"`
				TenantID string `json:"tenant_id"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func newSearchBody(vector []float64, k int) *searchBody {
	body := &searchBody{Size: k}
	body.Query.Nested.ScoreMode = "max"
	body.Query.Nested.Path = "embedding"
	body.Query.Nested.Query.KNN = map[string]knnQuery{
		"embedding.knn": {Vector: vector, K: k},
	}
	return body
}

// Search returns the concatenated passage bodies and their source previews.
// Any failure returns ("", nil).
func (r *Retriever) Search(ctx context.Context, req SearchRequest) (string, []models.Source) {
	passages, err := r.search(ctx, req)
	if err != nil {
		r.logger.Warn("vector search failed",
			zap.Error(err),
			zap.String("tenant_id", req.TenantID))
		return "", nil
	}

	r.logger.Info("vector search completed",
		zap.String("tenant_id", req.TenantID),
		zap.Int("hits", len(passages)))

	if len(passages) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sources := make([]models.Source, 0, len(passages))
	for _, p := range passages {
		sb.WriteString(p.Body)
		sb.WriteString("\n\n")
		sources = append(sources, models.Source{
			Title:    sourceTitle,
			Snippet:  Snippet(p.Body, r.config.SnippetLength),
			Metadata: models.SourceMetadata{TenantID: p.TenantID},
		})
	}
	return sb.String(), sources
}

func (r *Retriever) search(ctx context.Context, req SearchRequest) ([]models.Passage, error) {
	if req.Config == nil {
		return nil, fmt.Errorf("tenant config is required")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = r.config.DefaultLimit
	}

	payload, err := json.Marshal(newSearchBody(req.Vector, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}

	endpoint := r.searchURL(req.Config)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.AuthToken != "" {
		httpReq.Header.Set("Authorization", req.AuthToken)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	passages := make([]models.Passage, 0, len(parsed.Hits.Hits))
	for i, hit := range parsed.Hits.Hits {
		tenantID := hit.Source.TenantID
		if tenantID == "" {
			tenantID = unknownTenant
		} else if req.TenantID != "" && tenantID != req.TenantID {
			r.logger.Warn("dropping passage owned by another tenant",
				zap.String("tenant_id", req.TenantID),
				zap.String("passage_tenant_id", tenantID),
				zap.String("index_name", req.Config.IndexName))
			continue
		}
		passages = append(passages, models.Passage{
			Body:     hit.Source.Body,
			TenantID: tenantID,
			Rank:     i,
		})
	}
	return passages, nil
}

func (r *Retriever) searchURL(cfg *models.TenantConfig) string {
	u := url.URL{
		Scheme: r.config.Scheme,
		Host:   strings.TrimSpace(cfg.StoreHost),
		Path:   "/" + strings.TrimSpace(cfg.IndexName) + "/_search",
	}
	return u.String()
}

// Snippet returns the first n runes of body followed by "...".
// An empty body yields an empty snippet.
func Snippet(body string, n int) string {
	if body == "" {
		return ""
	}
	runes := []rune(body)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes) + "..."
}
