package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/grendelpress/manuscript-vault/internal/db/models"
)

var downloadWithSignupCols = []string{
	"id", "signup_id", "book_id", "watermark_uid", "file_format", "ip", "user_agent",
	"sha256", "created_at", "email", "first_name", "last_name",
}

func newDownloadRepo(t *testing.T) (*DownloadRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewDownloadRepository(db), mock
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestDownloadCreate(t *testing.T) {
	repo, mock := newDownloadRepo(t)
	now := time.Now()
	mock.ExpectExec("INSERT INTO downloads").
		WithArgs(sqlmock.AnyArg(), "signup-1", "book-1", "Ab3dE6gH", "epub", "10.0.0.1", "curl/8", "deadbeef", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	d := &models.Download{
		SignupID: "signup-1", BookID: "book-1", WatermarkUID: "Ab3dE6gH", FileFormat: models.FormatEPUB,
		IP: strPtr("10.0.0.1"), UserAgent: strPtr("curl/8"), SHA256: "deadbeef", CreatedAt: now,
	}
	if err := repo.Create(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID == "" {
		t.Error("expected ID to be assigned")
	}
}

func TestDownloadCreate_Error(t *testing.T) {
	repo, mock := newDownloadRepo(t)
	mock.ExpectExec("INSERT INTO downloads").WillReturnError(errDB)

	if err := repo.Create(context.Background(), &models.Download{}); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// ListByBook / FindByWatermark
// ---------------------------------------------------------------------------

func TestDownloadListByBook(t *testing.T) {
	repo, mock := newDownloadRepo(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM downloads WHERE book_id`).
		WithArgs("book-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`FROM downloads d\s+JOIN signups s`).
		WithArgs("book-1", 20, 0).
		WillReturnRows(sqlmock.NewRows(downloadWithSignupCols).
			AddRow("dl-2", "signup-1", "book-1", "ZZZZ0000", "pdf", nil, nil, "aa", now, "reader@example.com", "Rita", "Reader").
			AddRow("dl-1", "signup-1", "book-1", "YYYY1111", "epub", "10.0.0.1", "curl/8", "bb", now, "reader@example.com", "Rita", "Reader"))

	downloads, total, err := repo.ListByBook(context.Background(), "book-1", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(downloads) != 2 {
		t.Fatalf("total=%d len=%d", total, len(downloads))
	}
	if downloads[1].FileFormat != models.FormatEPUB || downloads[1].Email != "reader@example.com" {
		t.Errorf("row = %+v", downloads[1])
	}
}

func TestDownloadFindByWatermark_Unknown(t *testing.T) {
	repo, mock := newDownloadRepo(t)
	mock.ExpectQuery("WHERE d.watermark_uid").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(downloadWithSignupCols))

	d, err := repo.FindByWatermark(context.Background(), "nope")
	if err != nil || d != nil {
		t.Fatalf("FindByWatermark = %+v, %v; want nil, nil", d, err)
	}
}
