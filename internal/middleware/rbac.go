// Package middleware (rbac.go) implements scope-based authorization middleware.
//
// Scopes come from the staff token. Route-level checks only decide whether a staff
// member may use an endpoint at all; whether they may touch a particular book is
// decided by the service layer, which knows the book's author.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/auth"
)

// RequireScope checks if the authenticated staff member has the required scope
func RequireScope(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := scopesFromContext(c)
		if !ok {
			return
		}

		if !auth.HasScope(userScopes, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(scope),
			})
			return
		}

		c.Next()
	}
}

// RequireAnyScope checks if the authenticated staff member has at least one of the required scopes
func RequireAnyScope(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userScopes, ok := scopesFromContext(c)
		if !ok {
			return
		}

		if !auth.HasAnyScope(userScopes, scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Missing required scope",
			})
			return
		}

		c.Next()
	}
}

// scopesFromContext reads the scopes set by StaffAuth, aborting with 403 when they
// are missing or malformed.
func scopesFromContext(c *gin.Context) ([]string, bool) {
	scopesVal, exists := c.Get(ContextScopes)
	if !exists {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Insufficient permissions",
		})
		return nil, false
	}

	userScopes, ok := scopesVal.([]string)
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Invalid scopes format",
		})
		return nil, false
	}
	return userScopes, true
}
