// Package models - access_request.go defines a reader's request for a temporary password
// and the credential issued when it is approved.
package models

import "time"

// AccessRequest is a reader's request for access to one book
type AccessRequest struct {
	ID                    string     `json:"id" db:"id"`
	BookID                string     `json:"book_id" db:"book_id"`
	FirstName             string     `json:"first_name" db:"first_name"`
	LastName              string     `json:"last_name" db:"last_name"`
	Email                 string     `json:"email" db:"email"`
	Status                string     `json:"status" db:"status"`
	TemporaryPasswordHash *string    `json:"-" db:"temporary_password_hash"`
	PasswordExpiresAt     *time.Time `json:"password_expires_at,omitempty" db:"password_expires_at"`
	ClaimedAt             *time.Time `json:"claimed_at,omitempty" db:"claimed_at"`
	DenialReason          *string    `json:"denial_reason,omitempty" db:"denial_reason"`
	ResolvedBy            *string    `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt            *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ReminderSentAt        *time.Time `json:"reminder_sent_at,omitempty" db:"reminder_sent_at"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

// AccessRequestWithBook joins the request with the book fields shown in listings
// and notification emails.
type AccessRequestWithBook struct {
	AccessRequest
	BookSlug  string `json:"book_slug" db:"book_slug"`
	BookTitle string `json:"book_title" db:"book_title"`
}
