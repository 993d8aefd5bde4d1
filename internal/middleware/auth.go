// Package middleware contains gin middleware for the diagnostics service.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xilian/diagnostics-service/internal/auth"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// SubjectKey is the context key for the authenticated caller's name
	SubjectKey ContextKey = "auth_subject"

	// ScopeKey is the context key for the authenticated caller's scope
	ScopeKey ContextKey = "auth_scope"
)

// AuthMiddleware provides service-token authentication middleware
type AuthMiddleware struct {
	jwtService *auth.JWTService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtService *auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
	}
}

// Required returns a middleware that requires a valid service token with at
// least the given scope. Returns 401 when the token is missing or invalid
// and 403 when its scope is insufficient.
func (m *AuthMiddleware) Required(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.extractAndValidateToken(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": err.Error(),
			})
			c.Abort()
			return
		}

		if !scopeAllows(claims.Scope, scope) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "token scope does not permit this operation",
			})
			c.Abort()
			return
		}

		c.Set(string(SubjectKey), claims.Subject)
		c.Set(string(ScopeKey), claims.Scope)
		c.Next()
	}
}

// Optional returns a middleware that records caller identity if a valid
// token is present but never rejects the request
func (m *AuthMiddleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.extractAndValidateToken(c)
		if err == nil && claims != nil {
			c.Set(string(SubjectKey), claims.Subject)
			c.Set(string(ScopeKey), claims.Scope)
		}
		c.Next()
	}
}

// scopeAllows reports whether the granted scope covers the required one.
// Operator tokens cover ingest routes as well.
func scopeAllows(granted, required auth.Scope) bool {
	if granted == required {
		return true
	}
	return granted == auth.ScopeOperator && required == auth.ScopeIngest
}

// extractAndValidateToken pulls the bearer token from the Authorization
// header and validates it
func (m *AuthMiddleware) extractAndValidateToken(c *gin.Context) (*auth.Claims, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, errors.New("missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, errors.New("authorization header must be in the form 'Bearer <token>'")
	}

	return m.jwtService.ValidateToken(parts[1])
}
