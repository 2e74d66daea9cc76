// access_request_repository.go implements AccessRequestRepository. State transitions
// are conditional updates so concurrent resolvers and claimants get a single winner.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/grendelpress/manuscript-vault/internal/db/models"
)

// ErrPendingExists is returned by Create when the partial unique index on pending
// requests rejects the insert.
var ErrPendingExists = errors.New("pending access request already exists")

const accessRequestColumns = `ar.id, ar.book_id, ar.first_name, ar.last_name, ar.email, ar.status,
	ar.temporary_password_hash, ar.password_expires_at, ar.claimed_at, ar.denial_reason,
	ar.resolved_by, ar.resolved_at, ar.reminder_sent_at, ar.created_at, ar.updated_at`

const accessRequestWithBookSelect = `SELECT ` + accessRequestColumns + `, b.slug AS book_slug, b.title AS book_title
	FROM access_requests ar
	JOIN books b ON b.id = ar.book_id`

// AccessRequestRepository handles access request database operations
type AccessRequestRepository struct {
	db *sqlx.DB
}

// NewAccessRequestRepository creates a new AccessRequestRepository
func NewAccessRequestRepository(db *sqlx.DB) *AccessRequestRepository {
	return &AccessRequestRepository{db: db}
}

// Resolution is the column set written when a pending request is approved or denied.
type Resolution struct {
	Status                string
	TemporaryPasswordHash *string
	PasswordExpiresAt     *time.Time
	DenialReason          *string
	ResolvedBy            string
	ResolvedAt            time.Time
}

// AccessRequestFilter narrows List. Nil fields are ignored.
type AccessRequestFilter struct {
	BookSlug *string
	Status   *string
	From     *time.Time
	To       *time.Time
	// AuthorID restricts results to books written by this staff member.
	AuthorID *string
	Limit    int
	Offset   int
}

// Create inserts a pending request
func (r *AccessRequestRepository) Create(ctx context.Context, req *models.AccessRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = req.CreatedAt
	}

	query := `
		INSERT INTO access_requests (id, book_id, first_name, last_name, email, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.BookID, req.FirstName, req.LastName, req.Email, req.Status,
		req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrPendingExists
		}
		return fmt.Errorf("failed to create access request: %w", err)
	}
	return nil
}

// GetByID retrieves a request with its book. Returns nil, nil when absent.
func (r *AccessRequestRepository) GetByID(ctx context.Context, id string) (*models.AccessRequestWithBook, error) {
	query := accessRequestWithBookSelect + ` WHERE ar.id = $1`

	var req models.AccessRequestWithBook
	err := r.db.GetContext(ctx, &req, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access request: %w", err)
	}
	return &req, nil
}

// FindOpen returns the reader's pending request for the book, or failing that
// their most recent approved one. Returns nil, nil when neither exists.
func (r *AccessRequestRepository) FindOpen(ctx context.Context, bookID, email string) (*models.AccessRequest, error) {
	query := `SELECT ` + accessRequestColumns + `
		FROM access_requests ar
		WHERE ar.book_id = $1 AND ar.email = $2 AND ar.status IN ('pending', 'approved')
		ORDER BY CASE ar.status WHEN 'pending' THEN 0 ELSE 1 END, ar.created_at DESC
		LIMIT 1`

	var req models.AccessRequest
	err := r.db.GetContext(ctx, &req, query, bookID, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open access request: %w", err)
	}
	return &req, nil
}

// ListLiveTemporary returns the book's approved requests whose temporary password
// is unclaimed and has not expired at now.
func (r *AccessRequestRepository) ListLiveTemporary(ctx context.Context, bookID string, now time.Time) ([]models.AccessRequest, error) {
	query := `SELECT ` + accessRequestColumns + `
		FROM access_requests ar
		WHERE ar.book_id = $1
		  AND ar.status = 'approved'
		  AND ar.temporary_password_hash IS NOT NULL
		  AND ar.claimed_at IS NULL
		  AND ar.password_expires_at > $2
		ORDER BY ar.resolved_at DESC`

	reqs := []models.AccessRequest{}
	if err := r.db.SelectContext(ctx, &reqs, query, bookID, now); err != nil {
		return nil, fmt.Errorf("failed to list temporary credentials: %w", err)
	}
	return reqs, nil
}

// Resolve moves a pending request to its terminal state. Returns false when the
// request was no longer pending, including when another resolver won a race.
func (r *AccessRequestRepository) Resolve(ctx context.Context, id string, res Resolution) (bool, error) {
	query := `
		UPDATE access_requests
		SET status = $2,
		    temporary_password_hash = $3,
		    password_expires_at = $4,
		    claimed_at = NULL,
		    denial_reason = $5,
		    resolved_by = $6,
		    resolved_at = $7,
		    updated_at = $7
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query,
		id, res.Status, res.TemporaryPasswordHash, res.PasswordExpiresAt,
		res.DenialReason, res.ResolvedBy, res.ResolvedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to resolve access request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to resolve access request: %w", err)
	}
	return n == 1, nil
}

// Claim marks a temporary password as used if it is still unclaimed and unexpired
// at now. Returns false for the loser of a concurrent claim.
func (r *AccessRequestRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE access_requests
		SET claimed_at = $2, updated_at = $2
		WHERE id = $1
		  AND status = 'approved'
		  AND claimed_at IS NULL
		  AND password_expires_at > $2
	`
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim temporary password: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim temporary password: %w", err)
	}
	return n == 1, nil
}

// List returns requests matching filter, newest first, with the total match count.
func (r *AccessRequestRepository) List(ctx context.Context, filter AccessRequestFilter) ([]models.AccessRequestWithBook, int, error) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	if filter.BookSlug != nil {
		where += fmt.Sprintf(` AND b.slug = $%d`, paramIndex)
		args = append(args, *filter.BookSlug)
		paramIndex++
	}
	if filter.Status != nil {
		where += fmt.Sprintf(` AND ar.status = $%d`, paramIndex)
		args = append(args, *filter.Status)
		paramIndex++
	}
	if filter.From != nil {
		where += fmt.Sprintf(` AND ar.created_at >= $%d`, paramIndex)
		args = append(args, *filter.From)
		paramIndex++
	}
	if filter.To != nil {
		where += fmt.Sprintf(` AND ar.created_at <= $%d`, paramIndex)
		args = append(args, *filter.To)
		paramIndex++
	}
	if filter.AuthorID != nil {
		where += fmt.Sprintf(` AND b.author_id = $%d`, paramIndex)
		args = append(args, *filter.AuthorID)
		paramIndex++
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM access_requests ar JOIN books b ON b.id = ar.book_id` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count access requests: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := accessRequestWithBookSelect + where +
		fmt.Sprintf(` ORDER BY ar.created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, filter.Offset)

	reqs := []models.AccessRequestWithBook{}
	if err := r.db.SelectContext(ctx, &reqs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list access requests: %w", err)
	}
	return reqs, total, nil
}

// PendingCount counts pending requests, optionally only for one author's books.
func (r *AccessRequestRepository) PendingCount(ctx context.Context, authorID *string) (int, error) {
	query := `SELECT COUNT(*) FROM access_requests ar JOIN books b ON b.id = ar.book_id WHERE ar.status = 'pending'`
	args := []interface{}{}
	if authorID != nil {
		query += ` AND b.author_id = $1`
		args = append(args, *authorID)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count pending access requests: %w", err)
	}
	return count, nil
}

// ListExpiringUnreminded returns approved, unclaimed requests whose temporary
// password expires in (now, until] and whose reader has not been reminded yet.
func (r *AccessRequestRepository) ListExpiringUnreminded(ctx context.Context, now, until time.Time) ([]models.AccessRequestWithBook, error) {
	query := accessRequestWithBookSelect + `
		WHERE ar.status = 'approved'
		  AND ar.claimed_at IS NULL
		  AND ar.reminder_sent_at IS NULL
		  AND ar.password_expires_at > $1
		  AND ar.password_expires_at <= $2
		ORDER BY ar.password_expires_at`

	reqs := []models.AccessRequestWithBook{}
	if err := r.db.SelectContext(ctx, &reqs, query, now, until); err != nil {
		return nil, fmt.Errorf("failed to list expiring access requests: %w", err)
	}
	return reqs, nil
}

// MarkReminderSent stamps the request so it is reminded only once.
func (r *AccessRequestRepository) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE access_requests SET reminder_sent_at = $2 WHERE id = $1 AND reminder_sent_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}
