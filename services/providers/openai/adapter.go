package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/rag-query-service/services/providers"
	"github.com/upb/rag-query-service/utils"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "http://localhost:8000/api/v1"

	// maxResponseBytes caps how much of a model response is read
	maxResponseBytes = 8 << 20
)

// OpenAIAdapter implements the ModelClient interface for OpenAI-compatible endpoints,
// such as a Bedrock access gateway
type OpenAIAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOpenAIAdapter creates a new OpenAI-compatible adapter. Requests are never retried.
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
	defaults := providers.DefaultProviderConfig()

	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAIAdapter{
		config:     config,
		httpClient: utils.NewHTTPClient(config.ConnectTimeout, config.ReadTimeout),
		logger:     logger.With(zap.String("provider", "openai")),
	}
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Embed performs an embedding request for a single input text
func (a *OpenAIAdapter) Embed(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	startTime := time.Now()

	var openaiResp OpenAIEmbeddingResponse
	if err := a.post(ctx, "/embeddings", OpenAIEmbeddingRequest{Model: req.Model, Input: req.Input}, &openaiResp); err != nil {
		return nil, err
	}

	resp := &providers.EmbeddingResponse{
		Model:   openaiResp.Model,
		Latency: time.Since(startTime),
	}
	if len(openaiResp.Data) > 0 {
		resp.Embedding = openaiResp.Data[0].Embedding
	}
	if usage := a.parseUsage(openaiResp.Usage); usage != nil {
		resp.Usage = &providers.Usage{
			InputTokens: usage.PromptTokens,
		}
	}

	return resp, nil
}

// ChatCompletion performs a chat completion request
func (a *OpenAIAdapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	var openaiResp OpenAIChatResponse
	if err := a.post(ctx, "/chat/completions", a.buildOpenAIRequest(req), &openaiResp); err != nil {
		return nil, err
	}

	return a.convertToUnifiedResponse(&openaiResp, time.Since(startTime)), nil
}

// post sends one JSON request and decodes a 200 response into out
func (a *OpenAIAdapter) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return providers.NewProviderError(a.Name(), "REQUEST_ERROR", "Failed to create request", 0, err)
	}

	// Set headers
	httpReq.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return providers.NewProviderError(a.Name(), "READ_ERROR", "Failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, err)
	}

	return nil
}

// buildOpenAIRequest converts unified request to OpenAI format
func (a *OpenAIAdapter) buildOpenAIRequest(req *providers.ChatRequest) *OpenAIChatRequest {
	openaiReq := &OpenAIChatRequest{
		Model:       req.Model,
		Messages:    make([]OpenAIMessage, len(req.Messages)),
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}

	for i, msg := range req.Messages {
		openaiReq.Messages[i] = OpenAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	if req.MaxTokens > 0 {
		openaiReq.MaxTokens = &req.MaxTokens
	}

	return openaiReq
}

// convertToUnifiedResponse converts OpenAI response to unified format
func (a *OpenAIAdapter) convertToUnifiedResponse(openaiResp *OpenAIChatResponse, latency time.Duration) *providers.ChatResponse {
	resp := &providers.ChatResponse{
		ID:       openaiResp.ID,
		Model:    openaiResp.Model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(openaiResp.Choices)),
		Latency:  latency,
	}

	if usage := a.parseUsage(openaiResp.Usage); usage != nil {
		resp.Usage = &providers.Usage{
			InputTokens:  usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
		}
	}

	for i, choice := range openaiResp.Choices {
		content, err := parseContent(choice.Message.Content)
		if err != nil {
			a.logger.Warn("unrecognized message content in chat response",
				zap.Error(err),
				zap.String("model", openaiResp.Model),
				zap.Int("choice", choice.Index))
		}
		resp.Choices[i] = providers.Choice{
			Index: choice.Index,
			Message: providers.Message{
				Role:    choice.Message.Role,
				Content: content,
			},
			FinishReason: choice.FinishReason,
		}
	}

	return resp
}

// parseUsage decodes the usage block on its own so a malformed counter
// never fails the call. It returns nil when the block is absent or unreadable.
func (a *OpenAIAdapter) parseUsage(raw json.RawMessage) *OpenAIUsage {
	if isNull(raw) {
		return nil
	}
	var usage OpenAIUsage
	if err := json.Unmarshal(raw, &usage); err != nil {
		a.logger.Warn("ignoring malformed usage block", zap.Error(err))
		return nil
	}
	return &usage
}

// parseContent accepts either a plain string or an array of content parts,
// joining the text of every part. Any other shape yields empty content.
func parseContent(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var parts []OpenAIContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("content is neither a string nor a list of parts: %w", err)
	}

	var b strings.Builder
	for _, part := range parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// handleErrorResponse handles OpenAI error responses
func (a *OpenAIAdapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp OpenAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", fmt.Sprintf("model endpoint returned status %d", statusCode), statusCode, err)
	}

	return providers.NewProviderError(
		a.Name(),
		errResp.Error.Type,
		errResp.Error.Message,
		statusCode,
		errors.New(errResp.Error.Message),
	)
}

// OpenAI-specific request/response types

type OpenAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type OpenAIEmbeddingResponse struct {
	Object string                `json:"object"`
	Model  string                `json:"model"`
	Data   []OpenAIEmbeddingData `json:"data"`
	Usage  json.RawMessage       `json:"usage,omitempty"`
}

type OpenAIEmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type OpenAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	TopP        float64         `json:"top_p"`
}

type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice  `json:"choices"`
	Usage   json.RawMessage `json:"usage,omitempty"`
}

type OpenAIChoice struct {
	Index        int                   `json:"index"`
	Message      OpenAIResponseMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

// OpenAIResponseMessage keeps content raw since gateways send either a
// string or a list of parts
type OpenAIResponseMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type OpenAIContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
