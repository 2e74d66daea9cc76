package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/grendelpress/manuscript-vault/internal/auth"
	"github.com/grendelpress/manuscript-vault/internal/db/models"
	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
	"github.com/grendelpress/manuscript-vault/internal/middleware"
	"github.com/grendelpress/manuscript-vault/internal/services"
)

// ---------------------------------------------------------------------------
// Service fakes. Each records the staff and arguments it was called with.
// ---------------------------------------------------------------------------

type fakeRequests struct {
	staff    services.Staff
	listIn   services.ListRequestsInput
	id       string
	resolve  services.ResolveInput
	result   *services.ResolveResult
	pending  int
	err      error
	requests []models.AccessRequestWithBook
}

func (f *fakeRequests) List(_ context.Context, staff services.Staff, in services.ListRequestsInput) ([]models.AccessRequestWithBook, int, error) {
	f.staff, f.listIn = staff, in
	return f.requests, len(f.requests), f.err
}

func (f *fakeRequests) PendingCount(_ context.Context, staff services.Staff) (int, error) {
	f.staff = staff
	return f.pending, f.err
}

func (f *fakeRequests) Resolve(_ context.Context, staff services.Staff, id string, in services.ResolveInput) (*services.ResolveResult, error) {
	f.staff, f.id, f.resolve = staff, id, in
	return f.result, f.err
}

type fakePasswords struct {
	staff       services.Staff
	bookID      string
	id          string
	create      services.PasswordInput
	update      services.PasswordUpdate
	deactivated bool
	err         error
}

func (f *fakePasswords) List(_ context.Context, staff services.Staff, bookID string) ([]models.BookPassword, error) {
	f.staff, f.bookID = staff, bookID
	if f.err != nil {
		return nil, f.err
	}
	return []models.BookPassword{{ID: "pw-1", BookID: bookID, Label: "ARC readers", PasswordHash: "$2a$10$secret", IsActive: true}}, nil
}

func (f *fakePasswords) Create(_ context.Context, staff services.Staff, bookID string, in services.PasswordInput) (*models.BookPassword, error) {
	f.staff, f.bookID, f.create = staff, bookID, in
	if f.err != nil {
		return nil, f.err
	}
	return &models.BookPassword{ID: "pw-2", BookID: bookID, Label: in.Label, DistributionType: in.DistributionType, PasswordHash: "$2a$10$secret", IsActive: true}, nil
}

func (f *fakePasswords) Update(_ context.Context, staff services.Staff, id string, in services.PasswordUpdate) (*models.BookPassword, error) {
	f.staff, f.id, f.update = staff, id, in
	if f.err != nil {
		return nil, f.err
	}
	p := &models.BookPassword{ID: id, Label: "ARC readers", IsActive: true}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return p, nil
}

func (f *fakePasswords) Deactivate(_ context.Context, staff services.Staff, id string) error {
	f.staff, f.id = staff, id
	if f.err != nil {
		return f.err
	}
	f.deactivated = true
	return nil
}

type fakeDownloads struct {
	staff         services.Staff
	bookID        string
	limit, offset int
	wmid          string
	err           error
}

func (f *fakeDownloads) ListForBook(_ context.Context, staff services.Staff, bookID string, limit, offset int) ([]models.DownloadWithSignup, int, error) {
	f.staff, f.bookID, f.limit, f.offset = staff, bookID, limit, offset
	if f.err != nil {
		return nil, 0, f.err
	}
	return []models.DownloadWithSignup{{
		Download: models.Download{ID: "dl-1", BookID: bookID, WatermarkUID: "wm_1", FileFormat: models.FormatPDF},
		Email:    "ada@example.com",
	}}, 7, nil
}

func (f *fakeDownloads) Trace(_ context.Context, staff services.Staff, wmid string) (*services.Trace, error) {
	f.staff, f.wmid = staff, wmid
	if f.err != nil {
		return nil, f.err
	}
	return &services.Trace{
		Download: &models.DownloadWithSignup{Download: models.Download{ID: "dl-1", WatermarkUID: wmid}},
		Signup:   &models.Signup{ID: "signup-1", Email: "ada@example.com"},
		Book:     &models.Book{ID: "book-1", Slug: "night-garden"},
	}, nil
}

type fakeSignups struct {
	staff   services.Staff
	bookID  string
	filter  repositories.SignupExportFilter
	signups []models.Signup
	err     error
}

func (f *fakeSignups) ExportSignups(_ context.Context, staff services.Staff, bookID string, filter repositories.SignupExportFilter) (*services.SignupExport, error) {
	f.staff, f.bookID, f.filter = staff, bookID, filter
	if f.err != nil {
		return nil, f.err
	}
	return &services.SignupExport{
		Book:        &models.Book{ID: bookID, Slug: "night-garden", Title: "The Night Garden"},
		Signups:     f.signups,
		GeneratedAt: time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC),
	}, nil
}

type fakeBooks struct {
	staff  services.Staff
	bookID string
	format string
	data   []byte
	err    error
}

func (f *fakeBooks) List(_ context.Context, staff services.Staff) ([]models.Book, error) {
	f.staff = staff
	if f.err != nil {
		return nil, f.err
	}
	return []models.Book{{ID: "book-1", Slug: "night-garden", Title: "The Night Garden"}}, nil
}

func (f *fakeBooks) UploadMaster(_ context.Context, staff services.Staff, bookID, format string, data []byte) (*services.UploadResult, error) {
	f.staff, f.bookID, f.format, f.data = staff, bookID, format, data
	if f.err != nil {
		return nil, f.err
	}
	return &services.UploadResult{BookID: bookID, Format: models.FileFormat(format), Key: "books/book-1/master-abc.pdf", Size: int64(len(data))}, nil
}

func (f *fakeBooks) UploadCover(_ context.Context, staff services.Staff, bookID string, data []byte) (*services.UploadResult, error) {
	f.staff, f.bookID, f.data = staff, bookID, data
	if f.err != nil {
		return nil, f.err
	}
	return &services.UploadResult{BookID: bookID, Key: "book-1/cover-abc.png", Size: int64(len(data))}, nil
}

type fakeAuditLogs struct {
	filters       repositories.AuditFilters
	limit, offset int
	err           error
}

func (f *fakeAuditLogs) ListAuditLogs(_ context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	f.filters, f.limit, f.offset = filters, limit, offset
	if f.err != nil {
		return nil, 0, f.err
	}
	return []*models.AuditLog{{ID: "log-1", Action: "access_request.resolved", CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}}, 1, nil
}

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// asStaff stands in for StaffAuth with a fixed author identity.
func asStaff(scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextStaffID, "author-1")
		c.Set(middleware.ContextStaffEmail, "author@example.com")
		c.Set(middleware.ContextScopes, scopes)
		c.Next()
	}
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(asStaff(auth.AuthorScopes()...))
	return r
}

func send(r *gin.Engine, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sendJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	return send(r, method, path, &buf, "application/json")
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

