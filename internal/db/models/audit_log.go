// Package models - audit_log.go defines the AuditLog model for staff actions:
// who acted, what they did, which resource was affected, and from where.
package models

import "time"

// AuditLog represents an audit log entry for a staff mutation
type AuditLog struct {
	ID           string                 `json:"id"`
	ActorID      *string                `json:"actor_id,omitempty"` // nil for system actions
	ActorEmail   *string                `json:"actor_email,omitempty"`
	Action       string                 `json:"action"`                  // "access_request.resolved", "book_password.created"
	ResourceType *string                `json:"resource_type,omitempty"` // "access_request", "book_password", "book"
	ResourceID   *string                `json:"resource_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"` // JSONB
	IPAddress    *string                `json:"ip_address,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
