// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → StaffAuth → RBAC → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attempts before any DB work.
// StaffAuth populates the staff identity and scopes; RBAC reads from that context.
// Audit runs after RBAC so only authorized mutations are recorded.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/auth"
)

// Context keys set by StaffAuth
const (
	ContextStaffID    = "staff_id"
	ContextStaffEmail = "staff_email"
	ContextScopes     = "scopes"
	ContextAuthMethod = "auth_method"
)

// StaffAuth validates the staff bearer token and stores the caller's identity and
// scopes in the request context. Readers never reach routes guarded by it.
func StaffAuth(validator *auth.StaffTokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		claims, err := validator.Validate(token)
		if err != nil {
			slog.Debug("staff token rejected", "error", err, "ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		scopes := claims.Scopes
		if scopes == nil {
			scopes = []string{}
		}

		c.Set(ContextStaffID, claims.Subject)
		c.Set(ContextStaffEmail, claims.Email)
		c.Set(ContextScopes, scopes)
		c.Set(ContextAuthMethod, "jwt")

		c.Next()
	}
}

// contextString reads a string value set by an earlier middleware.
func contextString(c *gin.Context, key string) string {
	if v, ok := c.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
