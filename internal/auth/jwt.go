// Package auth provides service-token issuance and validation. Tokens are
// issued out of band to trusted callers (ingestion agents, operator tooling)
// and verified on protected routes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidClaims is returned when the token claims are invalid
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Scope names the access level a service token grants
type Scope string

const (
	// ScopeIngest allows writing telemetry readings
	ScopeIngest Scope = "ingest"

	// ScopeOperator additionally allows acknowledging anomalies and
	// clearing diagnostic sessions
	ScopeOperator Scope = "operator"
)

// Claims represents the JWT claims for a service token
type Claims struct {
	Subject string `json:"sub_name"`
	Scope   Scope  `json:"scope"`
	jwt.RegisteredClaims
}

// JWTService handles service-token generation and validation
type JWTService struct {
	secret   []byte
	tokenTTL time.Duration
}

// NewJWTService creates a new JWT service instance
func NewJWTService(secret string, tokenTTL time.Duration) *JWTService {
	return &JWTService{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

// GenerateToken issues a service token for the named caller with the
// given scope
func (s *JWTService) GenerateToken(subject string, scope Scope) (string, error) {
	now := time.Now()
	claims := &Claims{
		Subject: subject,
		Scope:   scope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a service token, returning its claims
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.Subject == "" || claims.Scope == "" {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}
