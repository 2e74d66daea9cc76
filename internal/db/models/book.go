// Package models - book.go defines the Book reference entity. Books are managed by an
// external catalogue; this service reads them and updates only their storage keys.
package models

import "time"

// Book is a manuscript available for distribution
type Book struct {
	ID              string    `json:"id" db:"id"`
	Slug            string    `json:"slug" db:"slug"`
	Title           string    `json:"title" db:"title"`
	AuthorID        string    `json:"author_id" db:"author_id"`
	AuthorName      string    `json:"author_name" db:"author_name"`
	AuthorEmail     *string   `json:"author_email,omitempty" db:"author_email"`
	PDFStorageKey   *string   `json:"pdf_storage_key,omitempty" db:"pdf_storage_key"`
	EPUBStorageKey  *string   `json:"epub_storage_key,omitempty" db:"epub_storage_key"`
	CoverStorageKey *string   `json:"cover_storage_key,omitempty" db:"cover_storage_key"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// MasterKey returns the storage key of the master file for format, or "" when the
// book has none.
func (b *Book) MasterKey(format FileFormat) string {
	var key *string
	switch format {
	case FormatPDF:
		key = b.PDFStorageKey
	case FormatEPUB:
		key = b.EPUBStorageKey
	}
	if key == nil {
		return ""
	}
	return *key
}
