// Package services implements the vault's use cases on top of the repositories,
// object storage and renderers: verifying passwords, running the access request
// workflow, minting download links, issuing watermarked copies and the staff
// administration of passwords and master files.
//
// Services return *apperr.Error for every failure a caller should see; anything
// else is an unexpected infrastructure error and maps to 500.
package services

import (
	"context"
	"time"

	"github.com/grendelpress/manuscript-vault/internal/apperr"
	"github.com/grendelpress/manuscript-vault/internal/audit"
	"github.com/grendelpress/manuscript-vault/internal/auth"
	"github.com/grendelpress/manuscript-vault/internal/db/models"
	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
	"github.com/grendelpress/manuscript-vault/internal/safego"
)

// sideEffectTimeout bounds notification and audit delivery started after the
// request has been answered.
const sideEffectTimeout = 30 * time.Second

// Staff is the authenticated staff member performing an admin operation.
type Staff struct {
	ID     string
	Email  string
	Scopes []string
}

// IsAdmin reports whether the staff member may act on every book.
func (s Staff) IsAdmin() bool {
	return auth.IsAdmin(s.Scopes)
}

// CanManage reports whether the staff member may act on book: admins on any
// book, everyone else only on books they author.
func (s Staff) CanManage(book *models.Book) bool {
	if s.IsAdmin() {
		return true
	}
	return book != nil && s.ID != "" && book.AuthorID == s.ID
}

// authorFilter returns the author restriction for list queries, or nil for admins.
func (s Staff) authorFilter() *string {
	if s.IsAdmin() {
		return nil
	}
	id := s.ID
	return &id
}

// activeBookBySlug resolves a public slug. Unknown and inactive books are both NotFound.
func activeBookBySlug(ctx context.Context, books *repositories.BookRepository, slug string) (*models.Book, error) {
	book, err := books.GetBySlug(ctx, slug)
	if err != nil {
		return nil, apperr.Internal("failed to look up book", err)
	}
	if book == nil || !book.IsActive {
		return nil, apperr.NotFound("Book not found")
	}
	return book, nil
}

// managedBook loads a book by id and checks the staff member may act on it.
func managedBook(ctx context.Context, books *repositories.BookRepository, staff Staff, bookID string) (*models.Book, error) {
	book, err := books.GetByID(ctx, bookID)
	if err != nil {
		return nil, apperr.Internal("failed to look up book", err)
	}
	if book == nil {
		return nil, apperr.NotFound("Book not found")
	}
	if !staff.CanManage(book) {
		return nil, apperr.Forbidden("You do not have access to this book")
	}
	return book, nil
}

// shipAsync delivers an audit event in the background. Failures are counted by
// the shipper and never reach the caller.
func shipAsync(shipper audit.Shipper, entry *audit.LogEntry) {
	if shipper == nil {
		return
	}
	safego.Detached("ship "+entry.Action, sideEffectTimeout, func(ctx context.Context) error {
		return shipper.Ship(ctx, entry)
	})
}

// background runs fn on a panic-safe goroutine with its own timeout, detached
// from the request context.
func background(name string, fn func(ctx context.Context) error) {
	safego.Detached(name, sideEffectTimeout, fn)
}
