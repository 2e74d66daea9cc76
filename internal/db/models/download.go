// Package models - download.go defines the immutable record written for every
// watermarked copy issued, and the file formats a copy can be produced in.
package models

import (
	"fmt"
	"strings"
	"time"
)

// FileFormat is a downloadable container format
type FileFormat string

const (
	FormatPDF  FileFormat = "pdf"
	FormatEPUB FileFormat = "epub"
)

// ParseFileFormat accepts "pdf" or "epub" in any case. Empty input defaults to pdf.
func ParseFileFormat(s string) (FileFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pdf":
		return FormatPDF, nil
	case "epub":
		return FormatEPUB, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// ContentType returns the MIME type served for f
func (f FileFormat) ContentType() string {
	if f == FormatEPUB {
		return "application/epub+zip"
	}
	return "application/pdf"
}

// Download is one watermarked copy handed to a reader. Rows are never updated or deleted.
type Download struct {
	ID           string     `json:"id" db:"id"`
	SignupID     string     `json:"signup_id" db:"signup_id"`
	BookID       string     `json:"book_id" db:"book_id"`
	WatermarkUID string     `json:"watermark_uid" db:"watermark_uid"`
	FileFormat   FileFormat `json:"file_format" db:"file_format"`
	IP           *string    `json:"ip,omitempty" db:"ip"`
	UserAgent    *string    `json:"user_agent,omitempty" db:"user_agent"`
	SHA256       string     `json:"sha256" db:"sha256"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// DownloadWithSignup joins a download with the reader it was issued to
type DownloadWithSignup struct {
	Download
	Email     string `json:"email" db:"email"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
}
