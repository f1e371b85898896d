package cognito

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")
)

// ExtractClaims parses claims from a JWT without verifying it.
// Only use the result for logging or diagnostics, never for authorization.
func ExtractClaims(tokenString string) (*Identity, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &Claims{}
	_, _, err := parser.ParseUnverified(StripBearer(tokenString), claims)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return toIdentity(claims), nil
}
