package cognito

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/upb/rag-query-service/services"
	"github.com/upb/rag-query-service/utils"
)

var (
	// ErrInvalidToken is returned when the token is malformed or its signature does not verify
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer is invalid
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience is returned when neither aud nor client_id names the configured client
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrKeyNotFound is returned when the token kid is absent from the signing-key set
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrMissingTenant is returned when the tenant_id claim is absent or unusable
	ErrMissingTenant = errors.New("missing tenant claim")

	// ErrJWKSFetchFailed is returned when JWKS fetching fails
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")
)

const jwksCacheKey = "jwks"

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (s *JWKS) find(kid string) *JWK {
	for i := range s.Keys {
		if s.Keys[i].Kid == kid {
			return &s.Keys[i]
		}
	}
	return nil
}

// Claims represents the claims carried by Cognito ID and access tokens.
// tenant_id is injected by the pre-token-generation trigger.
type Claims struct {
	jwt.RegisteredClaims
	TenantID        string `json:"tenant_id"`
	ClientID        string `json:"client_id"`
	TokenUse        string `json:"token_use"`
	Email           string `json:"email"`
	CognitoUsername string `json:"cognito:username"`
}

// Identity is the verified caller identity handed to the rest of the pipeline.
type Identity struct {
	TenantID  string
	Subject   string
	ClientID  string
	Audience  []string
	TokenUse  string
	Email     string
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CognitoValidator validates JWT tokens from AWS Cognito
type CognitoValidator struct {
	region     string
	userPoolID string
	clientID   string
	issuer     string
	jwksURL    string
	httpClient *http.Client

	// jwksCache is nil when caching is disabled
	jwksCache    *ristretto.Cache[string, *JWKS]
	jwksCacheTTL time.Duration
}

// Config holds configuration for CognitoValidator
type Config struct {
	Region         string
	UserPoolID     string
	ClientID       string
	JWKSURL        string        // defaults to the user pool's well-known endpoint
	CacheTTL       time.Duration // 0 disables the key-set cache
	ConnectTimeout time.Duration
	HTTPTimeout    time.Duration
}

// NewCognitoValidator creates a new Cognito JWT validator
func NewCognitoValidator(config Config) (*CognitoValidator, error) {
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 10 * time.Second
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 3 * time.Second
	}

	issuer := fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", config.Region, config.UserPoolID)
	jwksURL := config.JWKSURL
	if jwksURL == "" {
		jwksURL = issuer + "/.well-known/jwks.json"
	}

	v := &CognitoValidator{
		region:       config.Region,
		userPoolID:   config.UserPoolID,
		clientID:     config.ClientID,
		issuer:       issuer,
		jwksURL:      jwksURL,
		jwksCacheTTL: config.CacheTTL,
		httpClient:   utils.NewHTTPClient(config.ConnectTimeout, config.HTTPTimeout),
	}

	if config.CacheTTL > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, *JWKS]{
			NumCounters: 100,
			MaxCost:     10,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create jwks cache: %w", err)
		}
		v.jwksCache = cache
	}

	return v, nil
}

// Close releases the key-set cache.
func (v *CognitoValidator) Close() {
	if v.jwksCache != nil {
		v.jwksCache.Close()
	}
}

// ValidateToken verifies the token signature against the pool's signing keys
// and validates expiry, issuer, audience and tenant claims locally. A
// "Bearer " prefix is accepted. Every failure is an unauthorized DomainError.
func (v *CognitoValidator) ValidateToken(ctx context.Context, tokenString string) (*Identity, error) {
	identity, err := v.validate(ctx, StripBearer(tokenString))
	if err != nil {
		return nil, services.NewAuthError(err)
	}
	return identity, nil
}

func (v *CognitoValidator) validate(ctx context.Context, tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.issuer),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("%w: kid header not found", ErrKeyNotFound)
		}
		return v.getPublicKey(ctx, kid)
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrInvalidIssuer
		case errors.Is(err, ErrKeyNotFound):
			return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
		case errors.Is(err, ErrJWKSFetchFailed):
			return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if !v.audienceMatches(claims) {
		return nil, ErrInvalidAudience
	}

	if claims.TokenUse != "id" && claims.TokenUse != "access" {
		return nil, fmt.Errorf("%w: invalid token_use %q", ErrInvalidToken, claims.TokenUse)
	}

	if claims.TenantID == "" || strings.Contains(claims.TenantID, "#") {
		return nil, ErrMissingTenant
	}

	return toIdentity(claims), nil
}

// audienceMatches requires at least one client binding. ID tokens carry aud,
// access tokens carry client_id; whichever is present must name our client.
func (v *CognitoValidator) audienceMatches(claims *Claims) bool {
	if len(claims.Audience) == 0 && claims.ClientID == "" {
		return false
	}
	if len(claims.Audience) > 0 && !containsAudience(claims.Audience, v.clientID) {
		return false
	}
	if claims.ClientID != "" && claims.ClientID != v.clientID {
		return false
	}
	return true
}

// FetchJWKS returns the signing-key set, served from cache while the entry is fresh.
func (v *CognitoValidator) FetchJWKS(ctx context.Context) (*JWKS, error) {
	jwks, _, err := v.keySet(ctx)
	return jwks, err
}

// keySet reports whether the returned set came from the cache.
func (v *CognitoValidator) keySet(ctx context.Context) (*JWKS, bool, error) {
	if v.jwksCache != nil {
		if jwks, found := v.jwksCache.Get(jwksCacheKey); found {
			return jwks, true, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, false, fmt.Errorf("%w: failed to decode JWKS: %v", ErrJWKSFetchFailed, err)
	}

	if v.jwksCache != nil {
		v.jwksCache.SetWithTTL(jwksCacheKey, &jwks, 1, v.jwksCacheTTL)
		v.jwksCache.Wait()
	}

	return &jwks, false, nil
}

// getPublicKey retrieves the public key for a given kid. A miss against a
// cached set triggers one refetch so rotated keys are picked up immediately.
func (v *CognitoValidator) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	jwks, cached, err := v.keySet(ctx)
	if err != nil {
		return nil, err
	}

	jwk := jwks.find(kid)
	if jwk == nil && cached {
		v.InvalidateCache()
		if jwks, _, err = v.keySet(ctx); err != nil {
			return nil, err
		}
		jwk = jwks.find(kid)
	}

	if jwk == nil {
		return nil, fmt.Errorf("%w: kid %s", ErrKeyNotFound, kid)
	}

	publicKey, err := jwkToRSAPublicKey(jwk)
	if err != nil {
		return nil, fmt.Errorf("failed to convert JWK to RSA public key: %w", err)
	}

	return publicKey, nil
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	if jwk.Kty != "" && jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)

	var e int
	for _, b := range eBytes {
		e = e*256 + int(b)
	}
	if e == 0 {
		return nil, errors.New("invalid exponent")
	}

	return &rsa.PublicKey{N: n, E: e}, nil
}

// containsAudience checks if the audience list contains the expected client ID
func containsAudience(audiences jwt.ClaimStrings, clientID string) bool {
	for _, aud := range audiences {
		if aud == clientID {
			return true
		}
	}
	return false
}

// InvalidateCache drops the cached signing-key set
func (v *CognitoValidator) InvalidateCache() {
	if v.jwksCache != nil {
		v.jwksCache.Del(jwksCacheKey)
		v.jwksCache.Wait()
	}
}

// StripBearer removes an optional, case-insensitive "Bearer " scheme prefix.
func StripBearer(header string) string {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) >= len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return header
}

func toIdentity(claims *Claims) *Identity {
	identity := &Identity{
		TenantID: claims.TenantID,
		Subject:  claims.Subject,
		ClientID: claims.ClientID,
		Audience: []string(claims.Audience),
		TokenUse: claims.TokenUse,
		Email:    claims.Email,
		Username: claims.CognitoUsername,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity
}
