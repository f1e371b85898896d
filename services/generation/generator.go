package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/services"
	"github.com/upb/rag-query-service/services/metering"
	"github.com/upb/rag-query-service/services/providers"
	"go.uber.org/zap"
)

// FallbackAnswer is returned when a well-formed response carries no text
const FallbackAnswer = "I'm sorry, I couldn't generate a proper response."

// Config holds the model and inference parameters of every chat call
type Config struct {
	ModelID     string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Generator produces the final answer from the composed prompt and the conversation so far
type Generator struct {
	model   providers.ModelClient
	config  Config
	tracker metering.Tracker
	logger  *zap.Logger
}

// NewGenerator creates a new Generator
func NewGenerator(model providers.ModelClient, config Config, tracker metering.Tracker, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		model:   model,
		config:  config,
		tracker: tracker,
		logger:  logger,
	}
}

// ModelID returns the chat model identifier
func (g *Generator) ModelID() string {
	return g.config.ModelID
}

// Generate sends history followed by prompt as the final user turn and
// returns the answer text.
func (g *Generator) Generate(ctx context.Context, prompt string, history []models.ConversationTurn, tenantID string) (string, error) {
	messages, err := buildMessages(prompt, history)
	if err != nil {
		return "", err
	}

	resp, err := g.model.ChatCompletion(ctx, &providers.ChatRequest{
		Model:       g.config.ModelID,
		Messages:    messages,
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
		TopP:        g.config.TopP,
		Metadata:    map[string]string{"tenant_id": tenantID},
	})
	if err != nil {
		g.logger.Error("chat completion failed",
			zap.Error(err),
			zap.String("tenant_id", tenantID),
			zap.String("model_id", g.config.ModelID),
			zap.Int("status_code", providers.StatusCode(err)))
		return "", services.NewGenerationError(err).WithDetail("tenant_id", tenantID)
	}

	if g.tracker != nil {
		g.tracker.Track(ctx, tenantID, g.config.ModelID, models.ModelTypeChat, resp.Usage)
	}

	answer, ok := extractAnswer(resp)
	if !ok {
		g.logger.Warn("chat response carried no answer text",
			zap.String("tenant_id", tenantID),
			zap.String("model_id", g.config.ModelID),
			zap.Int("choices", len(resp.Choices)))
		return FallbackAnswer, nil
	}

	g.logger.Debug("generated answer",
		zap.String("tenant_id", tenantID),
		zap.Int("history_turns", len(history)),
		zap.Duration("latency", resp.Latency))

	return answer, nil
}

func buildMessages(prompt string, history []models.ConversationTurn) ([]providers.Message, error) {
	messages := make([]providers.Message, 0, len(history)+1)
	for i, turn := range history {
		if turn.Role != models.RoleUser && turn.Role != models.RoleAssistant {
			return nil, services.NewValidationError(
				fmt.Sprintf("conversationHistory[%d].role must be one of: user assistant", i)).
				WithDetail("role", turn.Role)
		}
		messages = append(messages, providers.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, providers.Message{Role: models.RoleUser, Content: prompt})
	return messages, nil
}

func extractAnswer(resp *providers.ChatResponse) (string, bool) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", false
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", false
	}
	return content, true
}
