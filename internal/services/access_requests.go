package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/grendelpress/manuscript-vault/internal/access"
	"github.com/grendelpress/manuscript-vault/internal/apperr"
	"github.com/grendelpress/manuscript-vault/internal/audit"
	"github.com/grendelpress/manuscript-vault/internal/auth"
	"github.com/grendelpress/manuscript-vault/internal/clock"
	"github.com/grendelpress/manuscript-vault/internal/config"
	"github.com/grendelpress/manuscript-vault/internal/db/models"
	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
	"github.com/grendelpress/manuscript-vault/internal/notify"
	"github.com/grendelpress/manuscript-vault/internal/telemetry"
)

// AccessRequestService runs the access request workflow: readers submit, staff
// approve or deny, approval issues a one-time temporary password.
type AccessRequestService struct {
	books    *repositories.BookRepository
	requests *repositories.AccessRequestRepository
	notifier notify.Notifier
	shipper  audit.Shipper
	validity time.Duration
	cost     int
	now      clock.Clock
}

// NewAccessRequestService creates a new AccessRequestService
func NewAccessRequestService(
	books *repositories.BookRepository,
	requests *repositories.AccessRequestRepository,
	notifier notify.Notifier,
	shipper audit.Shipper,
	cfg *config.AccessConfig,
	now clock.Clock,
) *AccessRequestService {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	validity := cfg.TemporaryPasswordTTL
	if validity <= 0 {
		validity = access.DefaultCredentialValidity
	}
	return &AccessRequestService{
		books:    books,
		requests: requests,
		notifier: notifier,
		shipper:  shipper,
		validity: validity,
		cost:     cfg.BcryptCost,
		now:      now.OrSystem(),
	}
}

// SubmitInput is a reader's request for access to a book
type SubmitInput struct {
	BookSlug  string
	FirstName string
	LastName  string
	Email     string
}

// Submit records a pending request and notifies the book's author.
func (s *AccessRequestService) Submit(ctx context.Context, in SubmitInput) (*models.AccessRequest, error) {
	sub, err := access.NormalizeSubmission(access.Submission{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
	})
	slug := strings.TrimSpace(in.BookSlug)
	if err != nil || slug == "" {
		fields := map[string]string{}
		var fe access.FieldErrors
		if errors.As(err, &fe) {
			for k, v := range fe {
				fields[k] = v
			}
		}
		if slug == "" {
			fields["bookSlug"] = "is required"
		}
		return nil, apperr.Validation("Invalid request", fields)
	}

	book, err := activeBookBySlug(ctx, s.books, slug)
	if err != nil {
		return nil, err
	}

	existing, err := s.requests.FindOpen(ctx, book.ID, sub.Email)
	if err != nil {
		return nil, apperr.Internal("failed to check existing requests", err)
	}
	if existing != nil {
		if err := access.CheckExisting(access.Status(existing.Status)); err != nil {
			return nil, existingConflict(err)
		}
	}

	now := s.now().UTC()
	req := &models.AccessRequest{
		BookID:    book.ID,
		FirstName: sub.FirstName,
		LastName:  sub.LastName,
		Email:     sub.Email,
		Status:    string(access.StatusPending),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		if errors.Is(err, repositories.ErrPendingExists) {
			return nil, existingConflict(access.ErrAlreadyPending)
		}
		return nil, apperr.Internal("failed to create access request", err)
	}

	telemetry.AccessRequestsTotal.WithLabelValues("submitted").Inc()
	slog.InfoContext(ctx, "access request submitted", "request_id", req.ID, "book_id", book.ID)

	notice := notify.AccessRequestNotice{
		AuthorName:     book.AuthorName,
		BookTitle:      book.Title,
		RequesterName:  sub.FirstName + " " + sub.LastName,
		RequesterEmail: sub.Email,
		RequestedAt:    now,
	}
	if book.AuthorEmail != nil {
		notice.To = *book.AuthorEmail
	}
	background("access request notification", func(ctx context.Context) error {
		return s.notifier.AccessRequestSubmitted(ctx, notice)
	})

	return req, nil
}

func existingConflict(err error) error {
	switch {
	case errors.Is(err, access.ErrAlreadyPending):
		return apperr.Conflict(apperr.CodeDuplicatePending, "You already have a pending request for this book")
	case errors.Is(err, access.ErrAlreadyApproved):
		return apperr.Conflict(apperr.CodeAlreadyApproved, "Your request was already approved. Check your email for the access password")
	default:
		return apperr.Internal("unexpected existing request state", err)
	}
}

// ResolveInput is a staff decision on one request
type ResolveInput struct {
	Action string
	Reason string
}

// ResolveResult is returned to the resolver. TemporaryPassword is the only time the
// plaintext is ever available; it is set on approval only.
type ResolveResult struct {
	Request           *models.AccessRequestWithBook
	TemporaryPassword string
	ExpiresAt         *time.Time
}

// Resolve approves or denies a pending request. Only admins and the book's author
// may resolve it. Approval issues a temporary password and emails it to the reader.
func (s *AccessRequestService) Resolve(ctx context.Context, staff Staff, requestID string, in ResolveInput) (*ResolveResult, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, apperr.Internal("failed to load access request", err)
	}
	if req == nil {
		return nil, apperr.NotFound("Access request not found")
	}
	if _, err := managedBook(ctx, s.books, staff, req.BookID); err != nil {
		return nil, err
	}

	now := s.now()
	outcome, err := access.Review(access.Status(req.Status), access.ReviewInput{
		Decision:   access.Decision(in.Action),
		Reason:     in.Reason,
		ReviewerID: staff.ID,
	}, now, s.validity)
	switch {
	case errors.Is(err, access.ErrInvalidDecision):
		return nil, apperr.Validation("Invalid request", map[string]string{"action": "must be approve or deny"})
	case errors.Is(err, access.ErrEmptyReviewer):
		return nil, apperr.Forbidden("Staff identity required")
	case errors.Is(err, access.ErrNotPending):
		return nil, alreadyResolved()
	case err != nil:
		return nil, apperr.Internal("failed to review access request", err)
	}

	res := repositories.Resolution{
		Status:            string(outcome.Status),
		PasswordExpiresAt: outcome.ExpiresAt,
		DenialReason:      outcome.DenialReason,
		ResolvedBy:        outcome.ResolvedBy,
		ResolvedAt:        outcome.ResolvedAt,
	}
	var plaintext string
	if outcome.Status == access.StatusApproved {
		plaintext, err = auth.GenerateTemporaryPassword()
		if err != nil {
			return nil, apperr.Internal("failed to generate temporary password", err)
		}
		hash, err := auth.HashPassword(plaintext, s.cost)
		if err != nil {
			return nil, apperr.Internal("failed to hash temporary password", err)
		}
		res.TemporaryPasswordHash = &hash
	}

	ok, err := s.requests.Resolve(ctx, req.ID, res)
	if err != nil {
		return nil, apperr.Internal("failed to resolve access request", err)
	}
	if !ok {
		return nil, alreadyResolved()
	}

	req.Status = res.Status
	req.TemporaryPasswordHash = res.TemporaryPasswordHash
	req.PasswordExpiresAt = res.PasswordExpiresAt
	req.ClaimedAt = nil
	req.DenialReason = res.DenialReason
	req.ResolvedBy = &res.ResolvedBy
	req.ResolvedAt = &res.ResolvedAt
	req.UpdatedAt = res.ResolvedAt

	telemetry.AccessRequestsTotal.WithLabelValues(res.Status).Inc()
	slog.InfoContext(ctx, "access request resolved",
		"request_id", req.ID, "book_id", req.BookID, "status", res.Status, "resolved_by", staff.ID)

	shipAsync(s.shipper, &audit.LogEntry{
		Timestamp:    res.ResolvedAt,
		Action:       audit.ActionAccessRequestResolved,
		ActorID:      staff.ID,
		ActorEmail:   staff.Email,
		BookID:       req.BookID,
		ResourceType: "access_request",
		ResourceID:   req.ID,
		Metadata:     map[string]interface{}{"status": res.Status},
	})

	if outcome.Status == access.StatusApproved {
		notice := notify.ApprovalNotice{
			To:                req.Email,
			ReaderName:        req.FirstName,
			BookTitle:         req.BookTitle,
			BookSlug:          req.BookSlug,
			TemporaryPassword: plaintext,
			ExpiresAt:         *res.PasswordExpiresAt,
		}
		background("approval notification", func(ctx context.Context) error {
			return s.notifier.AccessRequestApproved(ctx, notice)
		})
	}

	return &ResolveResult{
		Request:           req,
		TemporaryPassword: plaintext,
		ExpiresAt:         res.PasswordExpiresAt,
	}, nil
}

func alreadyResolved() error {
	return apperr.Conflict(apperr.CodeAlreadyResolved, "This request has already been resolved")
}

// ListRequestsInput filters the staff request listing
type ListRequestsInput struct {
	BookSlug string
	Status   string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// List returns requests visible to staff, newest first, with the total count.
// Non-admin staff only see requests for their own books.
func (s *AccessRequestService) List(ctx context.Context, staff Staff, in ListRequestsInput) ([]models.AccessRequestWithBook, int, error) {
	filter := repositories.AccessRequestFilter{
		From:     in.From,
		To:       in.To,
		AuthorID: staff.authorFilter(),
		Limit:    in.Limit,
		Offset:   in.Offset,
	}
	if slug := strings.TrimSpace(in.BookSlug); slug != "" {
		filter.BookSlug = &slug
	}
	if status := strings.ToLower(strings.TrimSpace(in.Status)); status != "" {
		switch access.Status(status) {
		case access.StatusPending, access.StatusApproved, access.StatusDenied:
			filter.Status = &status
		default:
			return nil, 0, apperr.Validation("Invalid request", map[string]string{"status": "must be pending, approved or denied"})
		}
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	reqs, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, 0, apperr.Internal("failed to list access requests", err)
	}
	return reqs, total, nil
}

// PendingCount returns the number of pending requests visible to staff.
func (s *AccessRequestService) PendingCount(ctx context.Context, staff Staff) (int, error) {
	n, err := s.requests.PendingCount(ctx, staff.authorFilter())
	if err != nil {
		return 0, apperr.Internal("failed to count pending requests", err)
	}
	return n, nil
}
