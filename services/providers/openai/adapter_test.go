package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/upb/rag-query-service/services/providers"
)

func TestNewOpenAIAdapter(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "test-key"})

	if adapter == nil {
		t.Fatal("NewOpenAIAdapter() returned nil")
	}

	if adapter.Name() != "openai" {
		t.Errorf("Name() = %s, want openai", adapter.Name())
	}

	if adapter.config.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", adapter.config.BaseURL, defaultBaseURL)
	}

	if adapter.config.ReadTimeout != 27*time.Second {
		t.Errorf("ReadTimeout = %v, want 27s", adapter.config.ReadTimeout)
	}

	trimmed := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: "http://gateway/api/v1/"})
	if trimmed.config.BaseURL != "http://gateway/api/v1" {
		t.Errorf("BaseURL = %s, want trailing slash trimmed", trimmed.config.BaseURL)
	}
}

func TestOpenAIAdapter_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}

		if r.URL.Path != "/embeddings" {
			t.Errorf("Expected path /embeddings, got %s", r.URL.Path)
		}

		body, _ := io.ReadAll(r.Body)
		var req OpenAIEmbeddingRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("invalid request body: %v", err)
		}

		if req.Input != "what is our refund policy?" {
			t.Errorf("Input = %q", req.Input)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(OpenAIEmbeddingResponse{
			Object: "list",
			Model:  req.Model,
			Data:   []OpenAIEmbeddingData{{Index: 0, Embedding: []float64{0.1, -0.2, 0.3}}},
			Usage:  json.RawMessage(`{"prompt_tokens":7,"total_tokens":7}`),
		})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})

	resp, err := adapter.Embed(context.Background(), &providers.EmbeddingRequest{
		Model: "amazon.titan-embed-text-v2:0",
		Input: "what is our refund policy?",
	})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if len(resp.Embedding) != 3 || resp.Embedding[1] != -0.2 {
		t.Errorf("Embedding = %v", resp.Embedding)
	}

	if resp.Usage == nil || resp.Usage.InputTokens != 7 || resp.Usage.OutputTokens != 0 {
		t.Errorf("Usage = %+v, want 7 input tokens", resp.Usage)
	}
}

func TestOpenAIAdapter_Embed_EmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: server.URL})

	resp, err := adapter.Embed(context.Background(), &providers.EmbeddingRequest{Model: "m", Input: "x"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if len(resp.Embedding) != 0 {
		t.Errorf("Embedding = %v, want empty", resp.Embedding)
	}

	if resp.Usage != nil {
		t.Errorf("Usage = %+v, want nil", resp.Usage)
	}
}

func TestOpenAIAdapter_ChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			t.Error("Authorization header missing or invalid")
		}

		body, _ := io.ReadAll(r.Body)
		var req OpenAIChatRequest
		_ = json.Unmarshal(body, &req)

		if req.Temperature != 1.0 || req.TopP != 1.0 {
			t.Errorf("temperature/top_p = %v/%v, want 1/1", req.Temperature, req.TopP)
		}

		if req.MaxTokens == nil || *req.MaxTokens != 1024 {
			t.Errorf("max_tokens = %v, want 1024", req.MaxTokens)
		}

		if len(req.Messages) != 3 || req.Messages[2].Role != "user" {
			t.Errorf("Messages = %+v", req.Messages)
		}

		resp := OpenAIChatResponse{
			ID:      "chatcmpl-test123",
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   req.Model,
			Choices: []OpenAIChoice{
				{
					Index:        0,
					Message:      OpenAIResponseMessage{Role: "assistant", Content: json.RawMessage(`"Based on the available information..."`)},
					FinishReason: "stop",
				},
			},
			Usage: json.RawMessage(`{"prompt_tokens":100,"completion_tokens":50,"total_tokens":150}`),
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "test-key", BaseURL: server.URL})

	req := &providers.ChatRequest{
		Model: "anthropic.claude-3-5-sonnet-20241022-v2:0",
		Messages: []providers.Message{
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello"},
			{Role: "user", Content: "prompt"},
		},
		MaxTokens:   1024,
		Temperature: 1.0,
		TopP:        1.0,
	}

	resp, err := adapter.ChatCompletion(context.Background(), req)
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}

	if resp.Provider != "openai" {
		t.Errorf("Provider = %s, want openai", resp.Provider)
	}

	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "Based on the available information..." {
		t.Errorf("Unexpected choices: %+v", resp.Choices)
	}

	if resp.Usage == nil || resp.Usage.InputTokens != 100 || resp.Usage.OutputTokens != 50 {
		t.Errorf("Usage = %+v, want 100/50", resp.Usage)
	}
}

func TestOpenAIAdapter_ChatCompletion_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(OpenAIErrorResponse{
			Error: OpenAIError{
				Message: "Invalid request",
				Type:    "invalid_request_error",
				Code:    "invalid_api_key",
			},
		})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "invalid-key", BaseURL: server.URL})

	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model:    "m",
		Messages: []providers.Message{{Role: "user", Content: "test"}},
	})
	if err == nil {
		t.Fatal("Expected error but got none")
	}

	provErr, ok := err.(*providers.ProviderError)
	if !ok {
		t.Fatalf("Expected ProviderError, got %T", err)
	}

	if provErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, http.StatusBadRequest)
	}

	if provErr.Code != "invalid_request_error" {
		t.Errorf("Code = %s, want invalid_request_error", provErr.Code)
	}
}

func TestOpenAIAdapter_NoRetry(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: server.URL})

	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model:    "m",
		Messages: []providers.Message{{Role: "user", Content: "test"}},
	})
	if err == nil {
		t.Fatal("Expected error but got none")
	}

	if providers.StatusCode(err) != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", providers.StatusCode(err))
	}

	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("Expected exactly 1 attempt, got %d", got)
	}
}

func TestOpenAIAdapter_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [`))
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: server.URL})

	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{Model: "m"})
	if err == nil {
		t.Fatal("Expected unmarshal error")
	}

	if !strings.Contains(err.Error(), "Failed to unmarshal response") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestOpenAIAdapter_MalformedUsage(t *testing.T) {
	tests := []struct {
		name  string
		usage string
	}{
		{"string counter", `{"prompt_tokens":"12","completion_tokens":null}`},
		{"usage is a list", `[1,2]`},
		{"usage is a string", `"n/a"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				switch r.URL.Path {
				case "/embeddings":
					_, _ = w.Write([]byte(`{"object":"list","data":[{"index":0,"embedding":[0.5,0.25]}],"usage":` + tt.usage + `}`))
				default:
					_, _ = w.Write([]byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":` + tt.usage + `}`))
				}
			}))
			defer server.Close()

			adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: server.URL})

			chat, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
				Model:    "m",
				Messages: []providers.Message{{Role: "user", Content: "hi"}},
			})
			if err != nil {
				t.Fatalf("ChatCompletion() error = %v", err)
			}
			if chat.Usage != nil {
				t.Errorf("chat Usage = %+v, want nil", chat.Usage)
			}
			if len(chat.Choices) != 1 || chat.Choices[0].Message.Content != "hello" {
				t.Errorf("Unexpected choices: %+v", chat.Choices)
			}

			emb, err := adapter.Embed(context.Background(), &providers.EmbeddingRequest{Model: "m", Input: "x"})
			if err != nil {
				t.Fatalf("Embed() error = %v", err)
			}
			if emb.Usage != nil {
				t.Errorf("embedding Usage = %+v, want nil", emb.Usage)
			}
			if len(emb.Embedding) != 2 {
				t.Errorf("Embedding = %v", emb.Embedding)
			}
		})
	}
}

func TestOpenAIAdapter_ContentShapes(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain string", `"hi there"`, "hi there"},
		{"list of parts", `[{"type":"text","text":"hi"},{"type":"text","text":" there"}]`, "hi there"},
		{"part without text", `[{"type":"image_url"},{"type":"text","text":"hi"}]`, "hi"},
		{"null content", `null`, ""},
		{"object content", `{"text":"hi"}`, ""},
		{"numeric content", `42`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":` + tt.content + `}}],"usage":{"prompt_tokens":10,"completion_tokens":4}}`))
			}))
			defer server.Close()

			adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: server.URL})

			resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
				Model:    "m",
				Messages: []providers.Message{{Role: "user", Content: "hi"}},
			})
			if err != nil {
				t.Fatalf("ChatCompletion() error = %v", err)
			}
			if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != tt.want {
				t.Errorf("Content = %+v, want %q", resp.Choices, tt.want)
			}
			if resp.Usage == nil || resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 4 {
				t.Errorf("Usage = %+v, want 10/4", resp.Usage)
			}
		})
	}
}

func TestOpenAIAdapter_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{BaseURL: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := adapter.Embed(ctx, &providers.EmbeddingRequest{Model: "m", Input: "x"}); err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}

func TestBuildOpenAIRequest(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{})

	req := &providers.ChatRequest{
		Model: "anthropic.claude-3-5-sonnet-20241022-v2:0",
		Messages: []providers.Message{
			{Role: "user", Content: "Hello"},
		},
		Temperature: 0,
		TopP:        0.9,
	}

	openaiReq := adapter.buildOpenAIRequest(req)

	if len(openaiReq.Messages) != 1 {
		t.Errorf("len(Messages) = %d, want 1", len(openaiReq.Messages))
	}

	if openaiReq.MaxTokens != nil {
		t.Errorf("MaxTokens = %v, want omitted", *openaiReq.MaxTokens)
	}

	data, _ := json.Marshal(openaiReq)
	if !strings.Contains(string(data), `"temperature":0`) {
		t.Errorf("zero temperature must still be sent: %s", data)
	}
}
