// signup_repository.go implements SignupRepository. One signup exists per
// (book, email); the upsert relies on the database constraint, not application locking.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/grendelpress/manuscript-vault/internal/db/models"
)

// SignupRepository handles signup database operations
type SignupRepository struct {
	db *sqlx.DB
}

// NewSignupRepository creates a new SignupRepository
func NewSignupRepository(db *sqlx.DB) *SignupRepository {
	return &SignupRepository{db: db}
}

// Upsert inserts the signup or, when (book_id, email) already exists, refreshes
// the reader's details on the existing row. s.ID and s.CreatedAt are set to the
// stored row's values.
func (r *SignupRepository) Upsert(ctx context.Context, s *models.Signup) error {
	id := uuid.New().String()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}

	query := `
		INSERT INTO signups (id, book_id, email, first_name, last_name, referred_by, mailing_opt_in, source_password_label, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (book_id, email) DO UPDATE
		SET first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    referred_by = EXCLUDED.referred_by,
		    mailing_opt_in = EXCLUDED.mailing_opt_in,
		    source_password_label = EXCLUDED.source_password_label,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	row := r.db.QueryRowxContext(ctx, query,
		id, s.BookID, s.Email, s.FirstName, s.LastName, s.ReferredBy,
		s.MailingOptIn, s.SourcePasswordLabel, s.CreatedAt, s.UpdatedAt,
	)
	if err := row.Scan(&s.ID, &s.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert signup: %w", err)
	}
	return nil
}

// GetByID retrieves a signup. Returns nil, nil when absent.
func (r *SignupRepository) GetByID(ctx context.Context, id string) (*models.Signup, error) {
	query := `
		SELECT id, book_id, email, first_name, last_name, referred_by, mailing_opt_in,
		       source_password_label, created_at, updated_at
		FROM signups
		WHERE id = $1
	`

	var s models.Signup
	err := r.db.GetContext(ctx, &s, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signup: %w", err)
	}
	return &s, nil
}

// SignupExportFilter narrows a signup export to one book. From and To bound
// created_at inclusively; OptInOnly keeps readers who accepted the mailing list.
type SignupExportFilter struct {
	BookID    string
	From      *time.Time
	To        *time.Time
	OptInOnly bool
}

// ListForExport returns the book's signups matching f, newest first.
func (r *SignupRepository) ListForExport(ctx context.Context, f SignupExportFilter) ([]models.Signup, error) {
	where := ` WHERE book_id = $1`
	args := []interface{}{f.BookID}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where += fmt.Sprintf(clause, len(args))
	}
	if f.From != nil {
		add(` AND created_at >= $%d`, *f.From)
	}
	if f.To != nil {
		add(` AND created_at <= $%d`, *f.To)
	}
	if f.OptInOnly {
		where += ` AND mailing_opt_in = TRUE`
	}

	query := `
		SELECT id, book_id, email, first_name, last_name, referred_by, mailing_opt_in,
		       source_password_label, created_at, updated_at
		FROM signups` + where + `
		ORDER BY created_at DESC`

	signups := []models.Signup{}
	if err := r.db.SelectContext(ctx, &signups, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list signups for export: %w", err)
	}
	return signups, nil
}
