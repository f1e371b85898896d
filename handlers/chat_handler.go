package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/upb/rag-query-service/middleware"
	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/services/rag"
	"github.com/upb/rag-query-service/utils"
	"go.uber.org/zap"
)

const maxChatBodyBytes = 1 << 20

// ChatRequest is the body of POST /api/v1/chat
type ChatRequest struct {
	Message             string                    `json:"message" validate:"required,notblank"`
	ConversationHistory []models.ConversationTurn `json:"conversationHistory" validate:"omitempty,dive"`
}

// ChatResponse is the answer envelope. Sources is never null.
type ChatResponse struct {
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
	Sources   []models.Source `json:"sources"`
}

// QueryService defines the interface for grounded answers
type QueryService interface {
	Query(ctx context.Context, in *rag.QueryInput) (*rag.QueryOutput, error)
}

// ChatHandler handles chat HTTP requests
type ChatHandler struct {
	service QueryService
	logger  *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(service QueryService, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		service: service,
		logger:  logger,
	}
}

// HandleChat handles POST /api/v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	claims := middleware.GetClaimsFromContext(ctx)
	if claims == nil || claims.TenantID == "" {
		h.logger.Error("claims not found in context", zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, msgAuthenticationFailed)
		return
	}

	logger := h.logger.With(
		zap.String("request_id", requestID),
		zap.String("tenant_id", claims.TenantID))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = utils.WriteBadRequest(w, "Request body too large", nil)
			return
		}
		logger.Warn("failed to read request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		_ = utils.WriteBadRequest(w, "Missing request body", nil)
		return
	}

	var chatReq ChatRequest
	if err := json.Unmarshal(body, &chatReq); err != nil {
		logger.Warn("failed to parse request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&chatReq); err != nil {
		logger.Warn("request validation failed", zap.Error(err))
		HandleValidationError(w, err, logger)
		return
	}

	out, err := h.service.Query(ctx, &rag.QueryInput{
		TenantID:  claims.TenantID,
		Subject:   claims.Subject,
		AuthToken: middleware.GetAuthTokenFromContext(ctx),
		Message:   chatReq.Message,
		History:   chatReq.ConversationHistory,
		RequestID: requestID,
	})
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	sources := out.Sources
	if sources == nil {
		sources = []models.Source{}
	}

	if err := utils.WriteOK(w, ChatResponse{
		Message:   out.Message,
		Timestamp: utils.Timestamp(),
		Sources:   sources,
	}); err != nil {
		logger.Error("failed to write chat response", zap.Error(err))
	}
}
