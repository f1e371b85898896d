package providers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ModelClient is the model endpoint used for both embedding and chat calls
type ModelClient interface {
	// Name returns the provider name (e.g., "openai")
	Name() string

	// Embed returns the embedding vector of a single input text
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)

	// ChatCompletion performs a chat completion request
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// EmbeddingRequest represents a unified embedding request
type EmbeddingRequest struct {
	// Model identifier (e.g., "amazon.titan-embed-text-v2:0")
	Model string `json:"model"`

	// Input is the text to embed
	Input string `json:"input"`
}

// EmbeddingResponse represents a unified embedding response
type EmbeddingResponse struct {
	Model     string        `json:"model"`
	Embedding []float64     `json:"embedding"`
	Usage     *Usage        `json:"usage,omitempty"`
	Latency   time.Duration `json:"latency"`
}

// ChatRequest represents a unified chat completion request
type ChatRequest struct {
	// Model identifier (e.g., "anthropic.claude-3-5-sonnet-20241022-v2:0")
	Model string `json:"model"`

	// Messages in the conversation
	Messages []Message `json:"messages"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness
	Temperature float64 `json:"temperature"`

	// TopP controls nucleus sampling
	TopP float64 `json:"top_p"`

	// Metadata for tracking and logging
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	// Role can be "user" or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// ChatResponse represents a unified chat completion response
type ChatResponse struct {
	ID       string        `json:"id"`
	Model    string        `json:"model"`
	Choices  []Choice      `json:"choices"`
	Usage    *Usage        `json:"usage,omitempty"`
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency"`
}

// Choice represents a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage holds the token counters reported by the model endpoint.
// A nil *Usage means the response carried no counters.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API
	BaseURL string

	// ConnectTimeout bounds connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout bounds the wait for the response
	ReadTimeout time.Duration

	// Additional headers
	Headers map[string]string

	// Logger receives response decoding warnings; nil disables them
	Logger *zap.Logger
}

// DefaultProviderConfig returns the default timeouts for model calls
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		ConnectTimeout: 3050 * time.Millisecond,
		ReadTimeout:    27 * time.Second,
		Headers:        make(map[string]string),
	}
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// StatusCode returns the HTTP status carried by a provider error, or 0
func StatusCode(err error) int {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.StatusCode
	}
	return 0
}
