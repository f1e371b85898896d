package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/rag-query-service/cognito"
	"github.com/upb/rag-query-service/utils"
)

const (
	msgMissingAuthorization = "Missing authorization header"
	msgAuthenticationFailed = "Authentication failed"
)

// TokenValidator defines the interface for validating JWT tokens
type TokenValidator interface {
	// ValidateToken validates a JWT token, with or without a Bearer prefix, and returns claims
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		validator: validator,
		logger:    logger,
	}
}

// RequireAuth is a middleware that requires a valid JWT in the Authorization header
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			m.logger.Warn("missing authorization header",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, msgMissingAuthorization)
			return
		}

		claims, err := m.validator.ValidateToken(ctx, header)
		if err != nil {
			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.Error(err),
			}
			// Unverified claims are for correlating failures only
			if identity, parseErr := cognito.ExtractClaims(header); parseErr == nil {
				fields = append(fields,
					zap.String("unverified_sub", identity.Subject),
					zap.String("unverified_tenant_id", identity.TenantID))
			}
			m.logger.Warn("token validation failed", fields...)
			_ = utils.WriteUnauthorized(w, msgAuthenticationFailed)
			return
		}

		ctx = WithClaims(ctx, claims)
		ctx = WithAuthToken(ctx, header)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", claims.Subject),
			zap.String("tenant_id", claims.TenantID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractTenant copies the tenant from verified claims into the context.
// This should be called after RequireAuth
func (m *AuthMiddleware) ExtractTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		claims := GetClaimsFromContext(ctx)
		if claims == nil {
			m.logger.Error("claims not found in context",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, msgAuthenticationFailed)
			return
		}

		if claims.TenantID == "" {
			m.logger.Warn("token carries no tenant",
				zap.String("request_id", requestID),
				zap.String("sub", claims.Subject))
			_ = utils.WriteUnauthorized(w, msgAuthenticationFailed)
			return
		}

		ctx = WithTenantID(ctx, claims.TenantID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
