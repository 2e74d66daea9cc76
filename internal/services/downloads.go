package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/grendelpress/manuscript-vault/internal/apperr"
	"github.com/grendelpress/manuscript-vault/internal/audit"
	"github.com/grendelpress/manuscript-vault/internal/auth"
	"github.com/grendelpress/manuscript-vault/internal/clock"
	"github.com/grendelpress/manuscript-vault/internal/db/models"
	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
	"github.com/grendelpress/manuscript-vault/internal/storage"
	"github.com/grendelpress/manuscript-vault/internal/telemetry"
	"github.com/grendelpress/manuscript-vault/internal/watermark"
	"github.com/grendelpress/manuscript-vault/pkg/checksum"
)

// ClientInfo describes the requester of a download, for the audit record.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// DownloadResult is one stamped copy ready to stream
type DownloadResult struct {
	Content     []byte
	ContentType string
	Filename    string
	WatermarkID string
	Format      models.FileFormat
	SHA256      string
}

// DownloadService turns a download token into a watermarked copy and records it.
type DownloadService struct {
	codec     *auth.DownloadTokenCodec
	books     *repositories.BookRepository
	signups   *repositories.SignupRepository
	downloads *repositories.DownloadRepository
	masters   *storage.MasterCache
	renderer  *watermark.Renderer
	shipper   audit.Shipper
	now       clock.Clock
}

// NewDownloadService creates a new DownloadService
func NewDownloadService(
	codec *auth.DownloadTokenCodec,
	books *repositories.BookRepository,
	signups *repositories.SignupRepository,
	downloads *repositories.DownloadRepository,
	masters *storage.MasterCache,
	renderer *watermark.Renderer,
	shipper audit.Shipper,
	now clock.Clock,
) *DownloadService {
	if renderer == nil {
		renderer = watermark.NewRenderer()
	}
	return &DownloadService{
		codec:     codec,
		books:     books,
		signups:   signups,
		downloads: downloads,
		masters:   masters,
		renderer:  renderer,
		shipper:   shipper,
		now:       now.OrSystem(),
	}
}

// Download validates token, stamps the requested master with the reader's
// identity and a fresh watermark id, and records the copy before returning it.
// A copy is never returned unless its download row was written.
func (s *DownloadService) Download(ctx context.Context, token string, client ClientInfo) (*DownloadResult, error) {
	claims, err := s.codec.Validate(token)
	if err != nil {
		return nil, err
	}

	signup, err := s.signups.GetByID(ctx, claims.SignupID)
	if err != nil {
		return nil, apperr.Internal("failed to load signup", err)
	}
	if signup == nil || signup.BookID != claims.BookID {
		return nil, apperr.NotFound("Signup not found")
	}

	book, err := s.books.GetByID(ctx, claims.BookID)
	if err != nil {
		return nil, apperr.Internal("failed to load book", err)
	}
	if book == nil || !book.IsActive {
		return nil, apperr.NotFound("Book not found")
	}

	format := claims.Format
	key := book.MasterKey(format)
	if key == "" {
		if format == models.FormatEPUB {
			return nil, apperr.Validation("EPUB is not available for this book", map[string]string{"format": "epub is not available"})
		}
		slog.ErrorContext(ctx, "book has no master file", "book_id", book.ID, "format", format)
		return nil, apperr.NotFound("File not available")
	}

	master, err := s.masters.Fetch(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.ErrorContext(ctx, "master file missing from storage", "book_id", book.ID, "format", format, "key", key)
			e := apperr.NotFound("File not available")
			e.Code = apperr.CodeMissingMaster
			return nil, e
		}
		return nil, apperr.Internal("failed to fetch master file", err)
	}

	wmid, err := auth.NewWatermarkID()
	if err != nil {
		return nil, apperr.Internal("failed to generate watermark id", err)
	}

	start := time.Now()
	stamped, err := s.renderer.Render(format, master, watermark.Stamp{
		Email:       signup.Email,
		Title:       book.Title,
		WatermarkID: wmid,
	})
	telemetry.WatermarkRenderDuration.WithLabelValues(string(format)).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.WatermarkRenderErrorsTotal.WithLabelValues(string(format)).Inc()
		slog.ErrorContext(ctx, "failed to watermark master", "book_id", book.ID, "format", format, "error", err)
		if apperr.KindOf(err) == apperr.KindRender {
			return nil, err
		}
		return nil, apperr.Render("failed to watermark file", err)
	}

	sum := checksum.Sum(stamped)
	rec := &models.Download{
		SignupID:     signup.ID,
		BookID:       book.ID,
		WatermarkUID: wmid,
		FileFormat:   format,
		IP:           optional(client.IP),
		UserAgent:    optional(client.UserAgent),
		SHA256:       sum,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.downloads.Create(ctx, rec); err != nil {
		return nil, apperr.Internal("failed to record download", err)
	}

	telemetry.DownloadsIssuedTotal.WithLabelValues(string(format)).Inc()
	slog.InfoContext(ctx, "watermarked copy issued",
		"book_id", book.ID, "signup_id", signup.ID, "watermark_id", wmid, "format", format)

	shipAsync(s.shipper, &audit.LogEntry{
		Timestamp:    rec.CreatedAt,
		Action:       audit.ActionDownloadIssued,
		BookID:       book.ID,
		ResourceType: "download",
		ResourceID:   rec.ID,
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
		Metadata: map[string]interface{}{
			"watermark_id": wmid,
			"format":       string(format),
			"signup_id":    signup.ID,
			"sha256":       sum,
		},
	})

	return &DownloadResult{
		Content:     stamped,
		ContentType: format.ContentType(),
		Filename:    fmt.Sprintf("%s-GP-stamped.%s", book.Slug, format),
		WatermarkID: wmid,
		Format:      format,
		SHA256:      sum,
	}, nil
}

// ListForBook returns a page of a book's download history.
func (s *DownloadService) ListForBook(ctx context.Context, staff Staff, bookID string, limit, offset int) ([]models.DownloadWithSignup, int, error) {
	if _, err := managedBook(ctx, s.books, staff, bookID); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, total, err := s.downloads.ListByBook(ctx, bookID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal("failed to list downloads", err)
	}
	return rows, total, nil
}

// Trace is everything known about the recipient of one watermarked copy.
type Trace struct {
	Download *models.DownloadWithSignup
	Signup   *models.Signup
	Book     *models.Book
}

// Trace resolves a watermark id read off a leaked copy to the download and reader.
func (s *DownloadService) Trace(ctx context.Context, staff Staff, watermarkID string) (*Trace, error) {
	watermarkID = strings.TrimSpace(watermarkID)
	if len(watermarkID) != auth.WatermarkIDLength {
		return nil, apperr.Validation("Invalid watermark id", map[string]string{"wmid": fmt.Sprintf("must be %d characters", auth.WatermarkIDLength)})
	}

	d, err := s.downloads.FindByWatermark(ctx, watermarkID)
	if err != nil {
		return nil, apperr.Internal("failed to look up watermark", err)
	}
	if d == nil {
		return nil, apperr.NotFound("Watermark not found")
	}

	book, err := managedBook(ctx, s.books, staff, d.BookID)
	if err != nil {
		// Do not reveal that the watermark exists on someone else's book.
		if apperr.KindOf(err) == apperr.KindForbidden {
			return nil, apperr.NotFound("Watermark not found")
		}
		return nil, err
	}

	signup, err := s.signups.GetByID(ctx, d.SignupID)
	if err != nil {
		return nil, apperr.Internal("failed to load signup", err)
	}
	return &Trace{Download: d, Signup: signup, Book: book}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
