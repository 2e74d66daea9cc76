// Package models - signup.go defines the reader record created the first time a
// (book, email) pair authenticates.
package models

import "time"

// Signup is unique per (BookID, Email); repeat authentications update it in place.
type Signup struct {
	ID                  string    `json:"id" db:"id"`
	BookID              string    `json:"book_id" db:"book_id"`
	Email               string    `json:"email" db:"email"`
	FirstName           string    `json:"first_name" db:"first_name"`
	LastName            string    `json:"last_name" db:"last_name"`
	ReferredBy          string    `json:"referred_by" db:"referred_by"`
	MailingOptIn        bool      `json:"mailing_opt_in" db:"mailing_opt_in"`
	SourcePasswordLabel *string   `json:"source_password_label,omitempty" db:"source_password_label"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}
