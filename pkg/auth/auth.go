package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for tokens that fail verification
	ErrInvalidToken = errors.New("invalid token")
	// ErrVerifierNotConfigured is returned when neither a secret nor a public key is set
	ErrVerifierNotConfigured = errors.New("identity verifier not configured")
)

// Identity is what the identity provider vouches for in a verified token
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// TokenVerifier verifies bearer tokens issued by the identity provider
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// flexBool accepts a JSON bool or a "true"/"false" string
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = flexBool(strings.EqualFold(s, "true"))
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into bool", string(data))
}

// Claims represents the identity provider's session token claims
type Claims struct {
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens against a shared secret or RS256 tokens
// against the provider's PEM public key.
type JWTVerifier struct {
	secret    []byte
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

// NewJWTVerifier builds a verifier. The public key wins when both are set.
func NewJWTVerifier(secret, publicKeyPEM, issuer string) (*JWTVerifier, error) {
	v := &JWTVerifier{}
	methods := []string{}

	switch {
	case publicKeyPEM != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to parse identity public key: %w", err)
		}
		v.publicKey = key
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	case secret != "":
		v.secret = []byte(secret)
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	default:
		return nil, ErrVerifierNotConfigured
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	v.parser = jwt.NewParser(opts...)

	return v, nil
}

// Verify validates a token and returns the identity it carries
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	claims := &Claims{}

	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if v.publicKey != nil {
			return v.publicKey, nil
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{
		Subject:       claims.Subject,
		Email:         strings.TrimSpace(claims.Email),
		EmailVerified: bool(claims.EmailVerified),
		Name:          strings.TrimSpace(claims.Name),
	}, nil
}

// DisabledVerifier rejects every token. It stands in when no verification
// key is configured so protected routes fail closed.
type DisabledVerifier struct{}

// Verify always returns ErrVerifierNotConfigured
func (DisabledVerifier) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	return nil, ErrVerifierNotConfigured
}

// IssueToken signs an HS256 token for identity. Used by local tooling and
// tests that stand in for the identity provider.
func IssueToken(identity Identity, secret, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email:         identity.Email,
		EmailVerified: flexBool(identity.EmailVerified),
		Name:          identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
