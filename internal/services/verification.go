package services

import (
	"context"
	"strings"

	"github.com/grendelpress/manuscript-vault/internal/access"
	"github.com/grendelpress/manuscript-vault/internal/apperr"
	"github.com/grendelpress/manuscript-vault/internal/auth"
	"github.com/grendelpress/manuscript-vault/internal/clock"
	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
	"github.com/grendelpress/manuscript-vault/internal/telemetry"
)

// CredentialKind says which class of credential matched a password.
type CredentialKind string

const (
	KindStanding  CredentialKind = "standing"
	KindTemporary CredentialKind = "temporary"
)

// TemporaryAccessLabel is recorded on signups that used a temporary password.
const TemporaryAccessLabel = "Temporary Access"

// Verification is the result of checking a password against a book.
// MatchedID is the book password id for standing matches and the access request
// id for temporary ones.
type Verification struct {
	Valid     bool
	Kind      CredentialKind
	MatchedID string
	Label     string
}

// VerificationService checks reader passwords. It never writes.
type VerificationService struct {
	books       *repositories.BookRepository
	credentials *repositories.CredentialRepository
	requests    *repositories.AccessRequestRepository
	now         clock.Clock
}

// NewVerificationService creates a new VerificationService
func NewVerificationService(
	books *repositories.BookRepository,
	credentials *repositories.CredentialRepository,
	requests *repositories.AccessRequestRepository,
	now clock.Clock,
) *VerificationService {
	return &VerificationService{
		books:       books,
		credentials: credentials,
		requests:    requests,
		now:         now.OrSystem(),
	}
}

// Verify checks password against the book's live temporary passwords first, then
// against the active standing passwords of the channel named by channelHint.
// Unknown hints fall back to the "other" channel. A non-match is Valid=false
// with no indication of which class was tried.
func (s *VerificationService) Verify(ctx context.Context, bookID, password, channelHint string) (*Verification, error) {
	if password == "" {
		telemetry.PasswordVerificationsTotal.WithLabelValues("invalid").Inc()
		return &Verification{}, nil
	}

	now := s.now()
	temps, err := s.requests.ListLiveTemporary(ctx, bookID, now)
	if err != nil {
		return nil, apperr.Internal("failed to load temporary credentials", err)
	}
	for _, req := range temps {
		if req.TemporaryPasswordHash == nil ||
			!access.CredentialLive(access.Status(req.Status), req.ClaimedAt, req.PasswordExpiresAt, now) {
			continue
		}
		if auth.CheckPassword(*req.TemporaryPasswordHash, password) {
			telemetry.PasswordVerificationsTotal.WithLabelValues(string(KindTemporary)).Inc()
			return &Verification{
				Valid:     true,
				Kind:      KindTemporary,
				MatchedID: req.ID,
				Label:     TemporaryAccessLabel,
			}, nil
		}
	}

	channel := auth.ResolveChannel(channelHint)
	standing, err := s.credentials.ListActiveByChannel(ctx, bookID, channel)
	if err != nil {
		return nil, apperr.Internal("failed to load book passwords", err)
	}
	for _, p := range standing {
		if auth.CheckPassword(p.PasswordHash, password) {
			telemetry.PasswordVerificationsTotal.WithLabelValues(string(KindStanding)).Inc()
			return &Verification{
				Valid:     true,
				Kind:      KindStanding,
				MatchedID: p.ID,
				Label:     p.Label,
			}, nil
		}
	}

	telemetry.PasswordVerificationsTotal.WithLabelValues("invalid").Inc()
	return &Verification{}, nil
}

// VerifyForBook resolves the public slug and verifies password against that book.
func (s *VerificationService) VerifyForBook(ctx context.Context, slug, password, channelHint string) (*Verification, error) {
	fields := map[string]string{}
	if strings.TrimSpace(slug) == "" {
		fields["bookSlug"] = "is required"
	}
	if password == "" {
		fields["password"] = "is required"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("Invalid request", fields)
	}

	book, err := activeBookBySlug(ctx, s.books, strings.TrimSpace(slug))
	if err != nil {
		return nil, err
	}
	return s.Verify(ctx, book.ID, password, channelHint)
}
