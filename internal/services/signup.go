package services

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/grendelpress/manuscript-vault/internal/access"
	"github.com/grendelpress/manuscript-vault/internal/apperr"
	"github.com/grendelpress/manuscript-vault/internal/auth"
	"github.com/grendelpress/manuscript-vault/internal/clock"
	"github.com/grendelpress/manuscript-vault/internal/db/models"
	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
)

// SignupService authenticates readers and mints their download links.
type SignupService struct {
	books     *repositories.BookRepository
	requests  *repositories.AccessRequestRepository
	signups   *repositories.SignupRepository
	verifier  *VerificationService
	codec     *auth.DownloadTokenCodec
	publicURL string
	now       clock.Clock
}

// NewSignupService creates a new SignupService. publicURL is the externally
// reachable base of the API, without a trailing slash.
func NewSignupService(
	books *repositories.BookRepository,
	requests *repositories.AccessRequestRepository,
	signups *repositories.SignupRepository,
	verifier *VerificationService,
	codec *auth.DownloadTokenCodec,
	publicURL string,
	now clock.Clock,
) *SignupService {
	return &SignupService{
		books:     books,
		requests:  requests,
		signups:   signups,
		verifier:  verifier,
		codec:     codec,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       now.OrSystem(),
	}
}

// SignupInput is the reader form submitted with a password
type SignupInput struct {
	BookSlug     string
	FirstName    string
	LastName     string
	Email        string
	Password     string
	ReferredBy   string
	MailingOptIn bool
	Format       string
}

// SignupResult carries the signed download link
type SignupResult struct {
	SignupID    string
	Format      models.FileFormat
	Token       string
	DownloadURL string
	ExpiresAt   time.Time
}

// Authenticate verifies the password, consumes it when it is a temporary one,
// records the reader and returns a short-lived download link.
//
// A temporary password is claimed with a conditional update before the signup is
// written; of two concurrent requests with the same password only one gets a link.
func (s *SignupService) Authenticate(ctx context.Context, in SignupInput) (*SignupResult, error) {
	sub, subErr := access.NormalizeSubmission(access.Submission{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
	})
	fields := map[string]string{}
	var fe access.FieldErrors
	if errors.As(subErr, &fe) {
		for k, v := range fe {
			fields[k] = v
		}
	}
	slug := strings.TrimSpace(in.BookSlug)
	if slug == "" {
		fields["bookSlug"] = "is required"
	}
	if in.Password == "" {
		fields["password"] = "is required"
	}
	format, err := models.ParseFileFormat(in.Format)
	if err != nil {
		fields["format"] = "must be pdf or epub"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("Invalid request", fields)
	}

	book, err := activeBookBySlug(ctx, s.books, slug)
	if err != nil {
		return nil, err
	}

	v, err := s.verifier.Verify(ctx, book.ID, in.Password, in.ReferredBy)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, apperr.InvalidCredential()
	}

	now := s.now().UTC()
	if v.Kind == KindTemporary {
		claimed, err := s.requests.Claim(ctx, v.MatchedID, now)
		if err != nil {
			return nil, apperr.Internal("failed to claim temporary password", err)
		}
		if !claimed {
			return nil, apperr.InvalidCredential()
		}
		slog.InfoContext(ctx, "temporary password claimed", "request_id", v.MatchedID, "book_id", book.ID)
	}

	label := v.Label
	signup := &models.Signup{
		BookID:              book.ID,
		Email:               sub.Email,
		FirstName:           sub.FirstName,
		LastName:            sub.LastName,
		ReferredBy:          strings.TrimSpace(in.ReferredBy),
		MailingOptIn:        in.MailingOptIn,
		SourcePasswordLabel: &label,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.signups.Upsert(ctx, signup); err != nil {
		return nil, apperr.Internal("failed to record signup", err)
	}

	token, expiresAt, err := s.codec.Mint(signup.ID, book.ID, format)
	if err != nil {
		return nil, apperr.Internal("failed to mint download token", err)
	}

	slog.InfoContext(ctx, "download link issued",
		"signup_id", signup.ID, "book_id", book.ID, "format", format, "credential", v.Kind)

	return &SignupResult{
		SignupID:    signup.ID,
		Format:      format,
		Token:       token,
		DownloadURL: s.publicURL + "/api/v1/download?token=" + url.QueryEscape(token),
		ExpiresAt:   expiresAt,
	}, nil
}

// SignupExport is a book's reader list as handed to staff.
type SignupExport struct {
	Book        *models.Book
	Signups     []models.Signup
	GeneratedAt time.Time
}

// ExportSignups lists the signups of a book the staff member manages. The
// filter's BookID is taken from bookID.
func (s *SignupService) ExportSignups(ctx context.Context, staff Staff, bookID string, filter repositories.SignupExportFilter) (*SignupExport, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, apperr.Validation("Invalid date range", map[string]string{"to": "must not be before from"})
	}

	book, err := managedBook(ctx, s.books, staff, bookID)
	if err != nil {
		return nil, err
	}

	filter.BookID = book.ID
	signups, err := s.signups.ListForExport(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("failed to export signups", err)
	}
	return &SignupExport{Book: book, Signups: signups, GeneratedAt: s.now()}, nil
}
