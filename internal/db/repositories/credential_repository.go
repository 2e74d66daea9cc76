// credential_repository.go implements CredentialRepository, the store of standing
// distribution passwords. Passwords are deactivated, never deleted, so download
// history can always name the credential a reader used.
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

const bookPasswordColumns = `id, book_id, label, password_hash, distribution_type,
	is_active, created_by, created_at, updated_at`

// CredentialRepository handles standing password database operations
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository creates a new CredentialRepository
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create inserts a standing password. ID is generated when empty.
func (r *CredentialRepository) Create(ctx context.Context, p *models.BookPassword) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	query := `
		INSERT INTO book_passwords (id, book_id, label, password_hash, distribution_type, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.BookID, p.Label, p.PasswordHash, p.DistributionType,
		p.IsActive, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create book password: %w", err)
	}
	return nil
}

// GetByID retrieves a standing password. Returns nil, nil when absent.
func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*models.BookPassword, error) {
	query := `SELECT ` + bookPasswordColumns + ` FROM book_passwords WHERE id = $1`

	var p models.BookPassword
	err := r.db.GetContext(ctx, &p, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book password: %w", err)
	}
	return &p, nil
}

// ListByBook returns all of a book's standing passwords, active first.
func (r *CredentialRepository) ListByBook(ctx context.Context, bookID string) ([]models.BookPassword, error) {
	query := `SELECT ` + bookPasswordColumns + ` FROM book_passwords
		WHERE book_id = $1
		ORDER BY is_active DESC, created_at DESC`

	passwords := []models.BookPassword{}
	if err := r.db.SelectContext(ctx, &passwords, query, bookID); err != nil {
		return nil, fmt.Errorf("failed to list book passwords: %w", err)
	}
	return passwords, nil
}

// ListActiveByChannel returns the active standing passwords a submission in
// channel may match, oldest first.
func (r *CredentialRepository) ListActiveByChannel(ctx context.Context, bookID, channel string) ([]models.BookPassword, error) {
	query := `SELECT ` + bookPasswordColumns + ` FROM book_passwords
		WHERE book_id = $1 AND distribution_type = $2 AND is_active = true
		ORDER BY created_at`

	passwords := []models.BookPassword{}
	if err := r.db.SelectContext(ctx, &passwords, query, bookID, channel); err != nil {
		return nil, fmt.Errorf("failed to list active book passwords: %w", err)
	}
	return passwords, nil
}

// Update writes label, channel, active flag and hash back to the row.
func (r *CredentialRepository) Update(ctx context.Context, p *models.BookPassword) error {
	query := `
		UPDATE book_passwords
		SET label = $2, distribution_type = $3, password_hash = $4, is_active = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		p.ID, p.Label, p.DistributionType, p.PasswordHash, p.IsActive, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update book password: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deactivate disables a standing password. Returns false when no row matched.
func (r *CredentialRepository) Deactivate(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `UPDATE book_passwords SET is_active = false, updated_at = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate book password: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to deactivate book password: %w", err)
	}
	return n > 0, nil
}
