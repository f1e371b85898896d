package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeUnauthorized     ErrorType = "unauthorized"
	ErrorTypeConfigNotFound   ErrorType = "config_not_found"
	ErrorTypeConfigIncomplete ErrorType = "config_incomplete"
	ErrorTypeEmbedding        ErrorType = "embedding"
	ErrorTypeGeneration       ErrorType = "generation"
	ErrorTypeInternal         ErrorType = "internal"
	ErrorTypeExternal         ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinel errors for errors.Is comparisons. Matching is by type only.
var (
	ErrInvalidInput     = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyMessage     = NewDomainError(ErrorTypeValidation, "message cannot be empty", nil)
	ErrUnauthorized     = NewDomainError(ErrorTypeUnauthorized, "authentication failed", nil)
	ErrConfigNotFound   = NewDomainError(ErrorTypeConfigNotFound, "tenant configuration not found", nil)
	ErrConfigIncomplete = NewDomainError(ErrorTypeConfigIncomplete, "tenant configuration incomplete", nil)
	ErrEmbeddingFailed  = NewDomainError(ErrorTypeEmbedding, "embedding generation failed", nil)
	ErrGenerationFailed = NewDomainError(ErrorTypeGeneration, "answer generation failed", nil)
	ErrInternal         = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// NewAuthError wraps a credential failure.
func NewAuthError(err error) *DomainError {
	return NewDomainError(ErrorTypeUnauthorized, "authentication failed", err)
}

// NewValidationError creates a validation error with the given message.
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil)
}

// NewConfigNotFoundError reports a tenant without a vector-store configuration row.
func NewConfigNotFoundError(tenantID string) *DomainError {
	return NewDomainError(ErrorTypeConfigNotFound, "tenant configuration not found", nil).
		WithDetail("tenant_id", tenantID)
}

// NewConfigIncompleteError reports a configuration row missing a required field.
func NewConfigIncompleteError(tenantID, missing string) *DomainError {
	return NewDomainError(ErrorTypeConfigIncomplete, "tenant configuration incomplete", nil).
		WithDetail("tenant_id", tenantID).
		WithDetail("missing", missing)
}

// NewEmbeddingError wraps a failed embedding call.
func NewEmbeddingError(err error) *DomainError {
	return NewDomainError(ErrorTypeEmbedding, "embedding generation failed", err)
}

// NewGenerationError wraps a failed generation call.
func NewGenerationError(err error) *DomainError {
	return NewDomainError(ErrorTypeGeneration, "answer generation failed", err)
}

// Error type checking helper functions

func isType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return isType(err, ErrorTypeUnauthorized)
}

// IsConfigNotFoundError checks if an error reports a missing tenant configuration
func IsConfigNotFoundError(err error) bool {
	return isType(err, ErrorTypeConfigNotFound)
}

// IsConfigIncompleteError checks if an error reports an incomplete tenant configuration
func IsConfigIncompleteError(err error) bool {
	return isType(err, ErrorTypeConfigIncomplete)
}

// IsEmbeddingError checks if an error is an embedding failure
func IsEmbeddingError(err error) bool {
	return isType(err, ErrorTypeEmbedding)
}

// IsGenerationError checks if an error is a generation failure
func IsGenerationError(err error) bool {
	return isType(err, ErrorTypeGeneration)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return isType(err, ErrorTypeInternal)
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	return isType(err, ErrorTypeExternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
