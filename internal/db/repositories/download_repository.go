// download_repository.go implements DownloadRepository, the append-only record of
// every watermarked copy issued. There is deliberately no update or delete.
package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/grendelpress/manuscript-vault/internal/db/models"
)

// DownloadRepository handles download audit database operations
type DownloadRepository struct {
	db *sqlx.DB
}

// NewDownloadRepository creates a new DownloadRepository
func NewDownloadRepository(db *sqlx.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// Create appends a download record
func (r *DownloadRepository) Create(ctx context.Context, d *models.Download) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	query := `
		INSERT INTO downloads (id, signup_id, book_id, watermark_uid, file_format, ip, user_agent, sha256, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.SignupID, d.BookID, d.WatermarkUID, d.FileFormat,
		d.IP, d.UserAgent, d.SHA256, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

// ListByBook returns a page of the book's downloads with reader details, newest
// first, and the total number of downloads.
func (r *DownloadRepository) ListByBook(ctx context.Context, bookID string, limit, offset int) ([]models.DownloadWithSignup, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM downloads WHERE book_id = $1`, bookID); err != nil {
		return nil, 0, fmt.Errorf("failed to count downloads: %w", err)
	}

	query := `
		SELECT d.id, d.signup_id, d.book_id, d.watermark_uid, d.file_format, d.ip, d.user_agent,
		       d.sha256, d.created_at, s.email, s.first_name, s.last_name
		FROM downloads d
		JOIN signups s ON s.id = d.signup_id
		WHERE d.book_id = $1
		ORDER BY d.created_at DESC
		LIMIT $2 OFFSET $3
	`
	downloads := []models.DownloadWithSignup{}
	if err := r.db.SelectContext(ctx, &downloads, query, bookID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list downloads: %w", err)
	}
	return downloads, total, nil
}

// FindByWatermark resolves a watermark id found in a leaked copy back to its
// download record. Returns nil, nil when unknown.
func (r *DownloadRepository) FindByWatermark(ctx context.Context, watermarkUID string) (*models.DownloadWithSignup, error) {
	query := `
		SELECT d.id, d.signup_id, d.book_id, d.watermark_uid, d.file_format, d.ip, d.user_agent,
		       d.sha256, d.created_at, s.email, s.first_name, s.last_name
		FROM downloads d
		JOIN signups s ON s.id = d.signup_id
		WHERE d.watermark_uid = $1
	`
	downloads := []models.DownloadWithSignup{}
	if err := r.db.SelectContext(ctx, &downloads, query, watermarkUID); err != nil {
		return nil, fmt.Errorf("failed to find download by watermark: %w", err)
	}
	if len(downloads) == 0 {
		return nil, nil
	}
	return &downloads[0], nil
}
