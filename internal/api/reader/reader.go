// Package reader implements the public HTTP handlers used by the reader-facing site.
// These endpoints are unauthenticated: a reader proves access with a book password
// (standing or temporary) and then with a short-lived download token. Staff
// operations live in the admin package, which enforces bearer authentication.
package reader

import (
	"context"

	"github.com/grendelpress/manuscript-vault/internal/db/models"
	"github.com/grendelpress/manuscript-vault/internal/services"
)

// AccessRequestSubmitter records reader requests for temporary access.
type AccessRequestSubmitter interface {
	Submit(ctx context.Context, in services.SubmitInput) (*models.AccessRequest, error)
}

// PasswordVerifier checks a password against a book without consuming it.
type PasswordVerifier interface {
	VerifyForBook(ctx context.Context, slug, password, channelHint string) (*services.Verification, error)
}

// SignupAuthenticator records a reader and mints a download link.
type SignupAuthenticator interface {
	Authenticate(ctx context.Context, in services.SignupInput) (*services.SignupResult, error)
}

// Downloader redeems a download token for a watermarked copy.
type Downloader interface {
	Download(ctx context.Context, token string, client services.ClientInfo) (*services.DownloadResult, error)
}

// BookDirectory serves the public description of a book.
type BookDirectory interface {
	PublicInfo(ctx context.Context, slug string) (*services.BookInfo, error)
}

// Handlers groups the reader endpoints
type Handlers struct {
	requests  AccessRequestSubmitter
	verifier  PasswordVerifier
	signups   SignupAuthenticator
	downloads Downloader
	books     BookDirectory
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	requests AccessRequestSubmitter,
	verifier PasswordVerifier,
	signups SignupAuthenticator,
	downloads Downloader,
	books BookDirectory,
) *Handlers {
	return &Handlers{
		requests:  requests,
		verifier:  verifier,
		signups:   signups,
		downloads: downloads,
		books:     books,
	}
}
