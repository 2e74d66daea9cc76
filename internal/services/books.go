package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grendelpress/manuscript-vault/internal/apperr"
	"github.com/grendelpress/manuscript-vault/internal/audit"
	"github.com/grendelpress/manuscript-vault/internal/clock"
	"github.com/grendelpress/manuscript-vault/internal/db/models"
	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
	"github.com/grendelpress/manuscript-vault/internal/storage"
	"github.com/grendelpress/manuscript-vault/internal/validation"
	"github.com/grendelpress/manuscript-vault/pkg/checksum"
)

// coverURLTTL is how long a signed cover URL handed to the public page stays valid.
const coverURLTTL = time.Hour

// BookService serves public book information and the staff uploads of master
// files and covers.
type BookService struct {
	books         *repositories.BookRepository
	buckets       *storage.Buckets
	masters       *storage.MasterCache
	shipper       audit.Shipper
	maxMasterSize int64
	now           clock.Clock
}

// NewBookService creates a new BookService. maxMasterSize <= 0 uses
// validation.MaxMasterSize.
func NewBookService(
	books *repositories.BookRepository,
	buckets *storage.Buckets,
	masters *storage.MasterCache,
	shipper audit.Shipper,
	maxMasterSize int64,
	now clock.Clock,
) *BookService {
	if maxMasterSize <= 0 {
		maxMasterSize = validation.MaxMasterSize
	}
	return &BookService{
		books:         books,
		buckets:       buckets,
		masters:       masters,
		shipper:       shipper,
		maxMasterSize: maxMasterSize,
		now:           now.OrSystem(),
	}
}

// BookInfo is the public view of a book shown on its landing page
type BookInfo struct {
	Slug       string   `json:"slug"`
	Title      string   `json:"title"`
	AuthorName string   `json:"authorName"`
	CoverURL   string   `json:"coverUrl,omitempty"`
	Formats    []string `json:"formats"`
}

// PublicInfo returns the landing page view of an active book. A cover that cannot
// be signed is omitted rather than failing the page.
func (s *BookService) PublicInfo(ctx context.Context, slug string) (*BookInfo, error) {
	book, err := activeBookBySlug(ctx, s.books, slug)
	if err != nil {
		return nil, err
	}

	info := &BookInfo{
		Slug:       book.Slug,
		Title:      book.Title,
		AuthorName: book.AuthorName,
		Formats:    []string{},
	}
	for _, f := range []models.FileFormat{models.FormatPDF, models.FormatEPUB} {
		if book.MasterKey(f) != "" {
			info.Formats = append(info.Formats, string(f))
		}
	}
	if book.CoverStorageKey != nil && s.buckets != nil && s.buckets.Covers != nil {
		u, err := s.buckets.Covers.GetURL(ctx, *book.CoverStorageKey, coverURLTTL)
		if err != nil {
			slog.WarnContext(ctx, "failed to sign cover url", "book_id", book.ID, "error", err)
		} else {
			info.CoverURL = u
		}
	}
	return info, nil
}

// List returns the books visible to staff.
func (s *BookService) List(ctx context.Context, staff Staff) ([]models.Book, error) {
	books, err := s.books.List(ctx, staff.authorFilter())
	if err != nil {
		return nil, apperr.Internal("failed to list books", err)
	}
	return books, nil
}

// UploadResult describes a stored master or cover
type UploadResult struct {
	BookID string            `json:"bookId"`
	Format models.FileFormat `json:"format,omitempty"`
	Key    string            `json:"key"`
	Size   int64             `json:"size"`
	SHA256 string            `json:"sha256"`
}

// UploadMaster validates and stores a new master file for a book. Keys are content
// addressed, so a re-upload never changes the bytes behind an existing key.
func (s *BookService) UploadMaster(ctx context.Context, staff Staff, bookID, formatParam string, data []byte) (*UploadResult, error) {
	format, err := models.ParseFileFormat(formatParam)
	if err != nil || formatParam == "" {
		return nil, apperr.Validation("Invalid format", map[string]string{"format": "must be pdf or epub"})
	}
	book, err := managedBook(ctx, s.books, staff, bookID)
	if err != nil {
		return nil, err
	}

	switch format {
	case models.FormatPDF:
		err = validation.ValidatePDF(data, s.maxMasterSize)
	case models.FormatEPUB:
		err = validation.ValidateEPUB(data, s.maxMasterSize)
	}
	if err != nil {
		return nil, apperr.Validation("Invalid master file", map[string]string{"file": err.Error()})
	}

	sum := checksum.Sum(data)
	key := fmt.Sprintf("books/%s/master-%s.%s", book.ID, sum[:16], format)
	if _, err := s.buckets.Masters.Upload(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, apperr.Internal("failed to store master file", err)
	}

	previous := book.MasterKey(format)
	if err := s.books.SetMasterKey(ctx, book.ID, format, key, s.now().UTC()); err != nil {
		return nil, apperr.Internal("failed to record master file", err)
	}
	if previous != "" {
		s.masters.Evict(previous)
	}
	s.masters.Evict(key)

	slog.InfoContext(ctx, "master file uploaded", "book_id", book.ID, "format", format, "key", key, "size", len(data))
	shipAsync(s.shipper, &audit.LogEntry{
		Action:       audit.ActionMasterUploaded,
		ActorID:      staff.ID,
		ActorEmail:   staff.Email,
		BookID:       book.ID,
		ResourceType: "book",
		ResourceID:   book.ID,
		Metadata: map[string]interface{}{
			"format": string(format),
			"key":    key,
			"sha256": sum,
			"size":   len(data),
		},
	})

	return &UploadResult{BookID: book.ID, Format: format, Key: key, Size: int64(len(data)), SHA256: sum}, nil
}

// UploadCover validates and stores a cover image for a book.
func (s *BookService) UploadCover(ctx context.Context, staff Staff, bookID string, data []byte) (*UploadResult, error) {
	book, err := managedBook(ctx, s.books, staff, bookID)
	if err != nil {
		return nil, err
	}

	ext, err := validation.ValidateCover(data)
	if err != nil {
		return nil, apperr.Validation("Invalid cover image", map[string]string{"file": err.Error()})
	}

	sum := checksum.Sum(data)
	key := fmt.Sprintf("%s/cover-%s%s", book.ID, sum[:16], ext)
	if _, err := s.buckets.Covers.Upload(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, apperr.Internal("failed to store cover", err)
	}
	if err := s.books.SetCoverKey(ctx, book.ID, key, s.now().UTC()); err != nil {
		return nil, apperr.Internal("failed to record cover", err)
	}

	slog.InfoContext(ctx, "cover uploaded", "book_id", book.ID, "key", key)
	return &UploadResult{BookID: book.ID, Key: key, Size: int64(len(data)), SHA256: sum}, nil
}
