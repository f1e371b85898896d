package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/rag-query-service/services"
	"github.com/upb/rag-query-service/utils"
	"go.uber.org/zap"
)

const (
	msgAuthenticationFailed = "Authentication failed"
	msgInternalError        = "An internal error occurred. Please try again later."
)

// HandleServiceError maps domain errors to HTTP responses.
// Only validation messages reach the caller; every other failure is logged
// with its details and answered with a generic message.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	switch {
	case services.IsValidationError(err):
		if err := utils.WriteBadRequest(w, validationMessage(err), details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsUnauthorizedError(err):
		logger.Warn("authentication failed", zap.Error(err))
		if err := utils.WriteUnauthorized(w, msgAuthenticationFailed); err != nil {
			logger.Error("failed to write unauthorized response", zap.Error(err))
		}

	default:
		logger.Error("request failed",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Any("details", details))
		if err := utils.WriteInternalServerError(w, msgInternalError); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// validationMessage returns the caller-facing text of a validation error
func validationMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	return err.Error()
}
