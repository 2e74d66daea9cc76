// Package auth - scopes.go defines the staff permission scopes and the helpers used
// by the RBAC middleware to check them.
package auth

import (
	"fmt"
)

// Scope represents a permission/scope type
type Scope string

const (
	// Access request scopes
	ScopeRequestsRead    Scope = "requests:read"
	ScopeRequestsResolve Scope = "requests:resolve"

	// Standing password management
	ScopePasswordsManage Scope = "passwords:manage"

	// Download history and leak tracing
	ScopeDownloadsRead Scope = "downloads:read"

	// Master file and cover uploads
	ScopeBooksManage Scope = "books:manage"

	// Audit log scopes
	ScopeAuditRead Scope = "audit:read"

	// Admin scope (wildcard - all permissions, all books)
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeRequestsRead,
		ScopeRequestsResolve,
		ScopePasswordsManage,
		ScopeDownloadsRead,
		ScopeBooksManage,
		ScopeAuditRead,
		ScopeAdmin,
	}
}

// AuthorScopes are the scopes an author needs to run distribution for their own books.
func AuthorScopes() []string {
	return []string{
		string(ScopeRequestsResolve),
		string(ScopePasswordsManage),
		string(ScopeDownloadsRead),
		string(ScopeBooksManage),
	}
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	valid := make(map[string]bool)
	for _, scope := range AllScopes() {
		valid[string(scope)] = true
	}
	for _, scope := range scopes {
		if !valid[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}
	return nil
}

// HasScope checks if a user has a required scope.
// admin grants everything, and requests:resolve implies requests:read.
func HasScope(userScopes []string, required Scope) bool {
	for _, scope := range userScopes {
		if scope == string(required) || scope == string(ScopeAdmin) {
			return true
		}
		if required == ScopeRequestsRead && scope == string(ScopeRequestsResolve) {
			return true
		}
	}
	return false
}

// HasAnyScope checks if a user has at least one of the required scopes
func HasAnyScope(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(userScopes, required) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the scopes include the admin wildcard.
func IsAdmin(userScopes []string) bool {
	for _, scope := range userScopes {
		if scope == string(ScopeAdmin) {
			return true
		}
	}
	return false
}
