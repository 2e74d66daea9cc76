package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/grendelpress/manuscript-vault/internal/db/models"
)

func newSignupRepo(t *testing.T) (*SignupRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewSignupRepository(db), mock
}

// ---------------------------------------------------------------------------
// Upsert
// ---------------------------------------------------------------------------

func TestSignupUpsert_ReturnsExistingRow(t *testing.T) {
	repo, mock := newSignupRepo(t)
	firstSeen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := firstSeen.Add(48 * time.Hour)

	mock.ExpectQuery(`INSERT INTO signups.*ON CONFLICT \(book_id, email\) DO UPDATE.*RETURNING id, created_at`).
		WithArgs(sqlmock.AnyArg(), "book-1", "reader@example.com", "Rita", "Reader", "hwa", true, "HWA list", now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("signup-1", firstSeen))

	s := &models.Signup{
		BookID: "book-1", Email: "reader@example.com", FirstName: "Rita", LastName: "Reader",
		ReferredBy: "hwa", MailingOptIn: true, SourcePasswordLabel: strPtr("HWA list"), CreatedAt: now,
	}
	if err := repo.Upsert(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "signup-1" {
		t.Errorf("ID = %q, want existing signup-1", s.ID)
	}
	if !s.CreatedAt.Equal(firstSeen) {
		t.Errorf("CreatedAt = %v, want original %v", s.CreatedAt, firstSeen)
	}
}

func TestSignupUpsert_Error(t *testing.T) {
	repo, mock := newSignupRepo(t)
	mock.ExpectQuery("INSERT INTO signups").WillReturnError(errDB)

	if err := repo.Upsert(context.Background(), &models.Signup{BookID: "b", Email: "e"}); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// GetByID
// ---------------------------------------------------------------------------

func TestSignupGetByID(t *testing.T) {
	repo, mock := newSignupRepo(t)
	now := time.Now()
	cols := []string{"id", "book_id", "email", "first_name", "last_name", "referred_by",
		"mailing_opt_in", "source_password_label", "created_at", "updated_at"}
	mock.ExpectQuery("FROM signups").
		WithArgs("signup-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("signup-1", "book-1", "reader@example.com", "Rita", "Reader", "other", false, "Temporary Access", now, now))

	s, err := repo.GetByID(context.Background(), "signup-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil || *s.SourcePasswordLabel != "Temporary Access" {
		t.Fatalf("signup = %+v", s)
	}
}

func TestSignupGetByID_NotFound(t *testing.T) {
	repo, mock := newSignupRepo(t)
	mock.ExpectQuery("FROM signups").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	s, err := repo.GetByID(context.Background(), "missing")
	if err != nil || s != nil {
		t.Fatalf("GetByID = %+v, %v; want nil, nil", s, err)
	}
}

// ---------------------------------------------------------------------------
// ListForExport
// ---------------------------------------------------------------------------

var exportCols = []string{"id", "book_id", "email", "first_name", "last_name", "referred_by",
	"mailing_opt_in", "source_password_label", "created_at", "updated_at"}

func TestSignupListForExport_BookOnly(t *testing.T) {
	repo, mock := newSignupRepo(t)
	now := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM signups\s+WHERE book_id = \$1\s+ORDER BY created_at DESC`).
		WithArgs("book-1").
		WillReturnRows(sqlmock.NewRows(exportCols).
			AddRow("signup-2", "book-1", "b@example.com", "Bea", "Reader", "", true, nil, now, now).
			AddRow("signup-1", "book-1", "a@example.com", "Al", "Reader", "hwa", false, "HWA list", now.Add(-time.Hour), now))

	got, err := repo.ListForExport(context.Background(), SignupExportFilter{BookID: "book-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "signup-2" || got[1].SourcePasswordLabel == nil {
		t.Fatalf("signups = %+v", got)
	}
}

func TestSignupListForExport_AllFilters(t *testing.T) {
	repo, mock := newSignupRepo(t)
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
	mock.ExpectQuery(`WHERE book_id = \$1 AND created_at >= \$2 AND created_at <= \$3 AND mailing_opt_in = TRUE`).
		WithArgs("book-1", from, to).
		WillReturnRows(sqlmock.NewRows(exportCols))

	got, err := repo.ListForExport(context.Background(), SignupExportFilter{BookID: "book-1", From: &from, To: &to, OptInOnly: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("signups = %#v, want empty non-nil slice", got)
	}
}

func TestSignupListForExport_UpperBoundOnly(t *testing.T) {
	repo, mock := newSignupRepo(t)
	to := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
	mock.ExpectQuery(`WHERE book_id = \$1 AND created_at <= \$2\s+ORDER BY`).
		WithArgs("book-1", to).
		WillReturnRows(sqlmock.NewRows(exportCols))

	if _, err := repo.ListForExport(context.Background(), SignupExportFilter{BookID: "book-1", To: &to}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSignupListForExport_Error(t *testing.T) {
	repo, mock := newSignupRepo(t)
	mock.ExpectQuery("FROM signups").WillReturnError(errDB)

	if _, err := repo.ListForExport(context.Background(), SignupExportFilter{BookID: "book-1"}); err == nil {
		t.Error("expected error, got nil")
	}
}
