// Package models - book_password.go defines standing distribution passwords. A book may
// carry several active passwords per distribution channel; any of them unlocks it.
package models

import "time"

// Distribution channels a standing password can be issued for
const (
	ChannelARC      = "arc"
	ChannelHWA      = "hwa"
	ChannelGiveaway = "giveaway"
	ChannelOther    = "other"
)

// BookPassword is a standing credential. The plaintext is never stored.
type BookPassword struct {
	ID               string    `json:"id" db:"id"`
	BookID           string    `json:"book_id" db:"book_id"`
	Label            string    `json:"label" db:"label"`
	PasswordHash     string    `json:"-" db:"password_hash"`
	DistributionType string    `json:"distribution_type" db:"distribution_type"`
	IsActive         bool      `json:"is_active" db:"is_active"`
	CreatedBy        *string   `json:"created_by,omitempty" db:"created_by"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
