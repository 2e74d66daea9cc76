package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/grendelpress/manuscript-vault/internal/apperr"
	"github.com/grendelpress/manuscript-vault/internal/audit"
	"github.com/grendelpress/manuscript-vault/internal/auth"
	"github.com/grendelpress/manuscript-vault/internal/clock"
	"github.com/grendelpress/manuscript-vault/internal/db/models"
	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
)

// MinStandingPasswordLength is the shortest standing password staff may set.
const MinStandingPasswordLength = 6

// PasswordService manages a book's standing distribution passwords. Passwords are
// deactivated rather than deleted.
type PasswordService struct {
	books       *repositories.BookRepository
	credentials *repositories.CredentialRepository
	shipper     audit.Shipper
	cost        int
	now         clock.Clock
}

// NewPasswordService creates a new PasswordService
func NewPasswordService(
	books *repositories.BookRepository,
	credentials *repositories.CredentialRepository,
	shipper audit.Shipper,
	bcryptCost int,
	now clock.Clock,
) *PasswordService {
	return &PasswordService{
		books:       books,
		credentials: credentials,
		shipper:     shipper,
		cost:        bcryptCost,
		now:         now.OrSystem(),
	}
}

// PasswordInput creates a standing password
type PasswordInput struct {
	Label            string
	Password         string
	DistributionType string
}

// PasswordUpdate changes a standing password. Nil fields are left as they are.
type PasswordUpdate struct {
	Label            *string
	Password         *string
	DistributionType *string
	IsActive         *bool
}

// List returns every standing password of a book, active or not.
func (s *PasswordService) List(ctx context.Context, staff Staff, bookID string) ([]models.BookPassword, error) {
	if _, err := managedBook(ctx, s.books, staff, bookID); err != nil {
		return nil, err
	}
	list, err := s.credentials.ListByBook(ctx, bookID)
	if err != nil {
		return nil, apperr.Internal("failed to list book passwords", err)
	}
	return list, nil
}

// Create hashes and stores a new active standing password.
func (s *PasswordService) Create(ctx context.Context, staff Staff, bookID string, in PasswordInput) (*models.BookPassword, error) {
	label := strings.TrimSpace(in.Label)
	channel := strings.ToLower(strings.TrimSpace(in.DistributionType))
	fields := map[string]string{}
	if label == "" {
		fields["label"] = "is required"
	}
	if len(in.Password) < MinStandingPasswordLength {
		fields["password"] = "must be at least 6 characters"
	}
	if !auth.ValidChannel(channel) {
		fields["distributionType"] = "must be one of arc, hwa, giveaway, other"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("Invalid request", fields)
	}

	if _, err := managedBook(ctx, s.books, staff, bookID); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password, s.cost)
	if err != nil {
		return nil, apperr.Internal("failed to hash password", err)
	}

	now := s.now().UTC()
	createdBy := staff.ID
	p := &models.BookPassword{
		BookID:           bookID,
		Label:            label,
		PasswordHash:     hash,
		DistributionType: channel,
		IsActive:         true,
		CreatedBy:        &createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.credentials.Create(ctx, p); err != nil {
		return nil, apperr.Internal("failed to create book password", err)
	}

	slog.InfoContext(ctx, "book password created", "book_id", bookID, "password_id", p.ID, "channel", channel)
	s.ship(staff, audit.ActionPasswordCreated, p)
	return p, nil
}

// Update applies a partial change to a standing password.
func (s *PasswordService) Update(ctx context.Context, staff Staff, id string, in PasswordUpdate) (*models.BookPassword, error) {
	p, err := s.load(ctx, staff, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	if in.Label != nil {
		if label := strings.TrimSpace(*in.Label); label != "" {
			p.Label = label
		} else {
			fields["label"] = "must not be empty"
		}
	}
	if in.DistributionType != nil {
		channel := strings.ToLower(strings.TrimSpace(*in.DistributionType))
		if auth.ValidChannel(channel) {
			p.DistributionType = channel
		} else {
			fields["distributionType"] = "must be one of arc, hwa, giveaway, other"
		}
	}
	if in.Password != nil && len(*in.Password) < MinStandingPasswordLength {
		fields["password"] = "must be at least 6 characters"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("Invalid request", fields)
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password, s.cost)
		if err != nil {
			return nil, apperr.Internal("failed to hash password", err)
		}
		p.PasswordHash = hash
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.credentials.Update(ctx, p); err != nil {
		return nil, apperr.Internal("failed to update book password", err)
	}

	slog.InfoContext(ctx, "book password updated", "book_id", p.BookID, "password_id", p.ID)
	s.ship(staff, audit.ActionPasswordUpdated, p)
	return p, nil
}

// Deactivate disables a standing password. Download history keeps its label.
func (s *PasswordService) Deactivate(ctx context.Context, staff Staff, id string) error {
	p, err := s.load(ctx, staff, id)
	if err != nil {
		return err
	}
	ok, err := s.credentials.Deactivate(ctx, id, s.now().UTC())
	if err != nil {
		return apperr.Internal("failed to deactivate book password", err)
	}
	if !ok {
		return apperr.NotFound("Password not found")
	}

	p.IsActive = false
	slog.InfoContext(ctx, "book password deactivated", "book_id", p.BookID, "password_id", p.ID)
	s.ship(staff, audit.ActionPasswordDeactivated, p)
	return nil
}

func (s *PasswordService) load(ctx context.Context, staff Staff, id string) (*models.BookPassword, error) {
	p, err := s.credentials.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to load book password", err)
	}
	if p == nil {
		return nil, apperr.NotFound("Password not found")
	}
	if _, err := managedBook(ctx, s.books, staff, p.BookID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PasswordService) ship(staff Staff, action string, p *models.BookPassword) {
	shipAsync(s.shipper, &audit.LogEntry{
		Action:       action,
		ActorID:      staff.ID,
		ActorEmail:   staff.Email,
		BookID:       p.BookID,
		ResourceType: "book_password",
		ResourceID:   p.ID,
		Metadata: map[string]interface{}{
			"label":             p.Label,
			"distribution_type": p.DistributionType,
			"is_active":         p.IsActive,
		},
	})
}
