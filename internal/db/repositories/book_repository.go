// book_repository.go implements BookRepository, which reads the book catalogue and
// records where each book's master files and cover live in object storage.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/grendelpress/manuscript-vault/internal/db/models"
)

const bookColumns = `id, slug, title, author_id, author_name, author_email,
	pdf_storage_key, epub_storage_key, cover_storage_key, is_active, created_at, updated_at`

// BookRepository handles book database operations
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository creates a new BookRepository
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

// GetBySlug retrieves a book by its public slug. Returns nil, nil when absent.
func (r *BookRepository) GetBySlug(ctx context.Context, slug string) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE slug = $1`

	var book models.Book
	err := r.db.GetContext(ctx, &book, query, slug)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book by slug: %w", err)
	}
	return &book, nil
}

// GetByID retrieves a book by ID. Returns nil, nil when absent.
func (r *BookRepository) GetByID(ctx context.Context, id string) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	var book models.Book
	err := r.db.GetContext(ctx, &book, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return &book, nil
}

// List returns every book ordered by title, optionally restricted to one author.
func (r *BookRepository) List(ctx context.Context, authorID *string) ([]models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books`
	args := []interface{}{}
	if authorID != nil {
		query += ` WHERE author_id = $1`
		args = append(args, *authorID)
	}
	query += ` ORDER BY title`

	books := []models.Book{}
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// SetMasterKey points the book's master file for format at key.
func (r *BookRepository) SetMasterKey(ctx context.Context, bookID string, format models.FileFormat, key string, now time.Time) error {
	var column string
	switch format {
	case models.FormatPDF:
		column = "pdf_storage_key"
	case models.FormatEPUB:
		column = "epub_storage_key"
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	query := `UPDATE books SET ` + column + ` = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, query, bookID, key, now)
}

// SetCoverKey points the book's cover image at key.
func (r *BookRepository) SetCoverKey(ctx context.Context, bookID, key string, now time.Time) error {
	query := `UPDATE books SET cover_storage_key = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, query, bookID, key, now)
}

func (r *BookRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
