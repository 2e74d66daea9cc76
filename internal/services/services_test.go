package services

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql/driver"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/grendelpress/manuscript-vault/internal/audit"
	"github.com/grendelpress/manuscript-vault/internal/auth"
	"github.com/grendelpress/manuscript-vault/internal/clock"
	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
	"github.com/grendelpress/manuscript-vault/internal/notify"
	"github.com/grendelpress/manuscript-vault/internal/storage"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testTokenKey = "0123456789abcdef0123456789abcdef"

var (
	adminStaff  = Staff{ID: "staff-admin", Email: "admin@example.com", Scopes: []string{"admin"}}
	authorStaff = Staff{ID: "author-1", Email: "author@example.com", Scopes: auth.AuthorScopes()}
	otherStaff  = Staff{ID: "author-2", Email: "other@example.com", Scopes: auth.AuthorScopes()}
)

var bookCols = []string{
	"id", "slug", "title", "author_id", "author_name", "author_email",
	"pdf_storage_key", "epub_storage_key", "cover_storage_key", "is_active", "created_at", "updated_at",
}

var requestCols = []string{
	"id", "book_id", "first_name", "last_name", "email", "status",
	"temporary_password_hash", "password_expires_at", "claimed_at", "denial_reason",
	"resolved_by", "resolved_at", "reminder_sent_at", "created_at", "updated_at",
}

var requestWithBookCols = append(append([]string{}, requestCols...), "book_slug", "book_title")

var passwordCols = []string{
	"id", "book_id", "label", "password_hash", "distribution_type",
	"is_active", "created_by", "created_at", "updated_at",
}

var signupCols = []string{
	"id", "book_id", "email", "first_name", "last_name", "referred_by", "mailing_opt_in",
	"source_password_label", "created_at", "updated_at",
}

var downloadCols = []string{
	"id", "signup_id", "book_id", "watermark_uid", "file_format", "ip", "user_agent",
	"sha256", "created_at", "email", "first_name", "last_name",
}

// sampleBookRow is the "sample" book by author-1 with a PDF and EPUB master.
func sampleBookRow(active bool) []driver.Value {
	return []driver.Value{
		"book-1", "sample", "Sample", "author-1", "Ann Author", "author@example.com",
		"books/book-1/master.pdf", "books/book-1/master.epub", nil, active, testNow, testNow,
	}
}

func bookRows(row []driver.Value) *sqlmock.Rows {
	return sqlmock.NewRows(bookCols).AddRow(row...)
}

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	h, err := auth.HashPassword(plain, bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

// ---------------------------------------------------------------------------
// Mock plumbing
// ---------------------------------------------------------------------------

type repos struct {
	books       *repositories.BookRepository
	requests    *repositories.AccessRequestRepository
	credentials *repositories.CredentialRepository
	signups     *repositories.SignupRepository
	downloads   *repositories.DownloadRepository
}

func newRepos(t *testing.T) (*repos, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		db.Close()
	})
	x := sqlx.NewDb(db, "sqlmock")
	return &repos{
		books:       repositories.NewBookRepository(x),
		requests:    repositories.NewAccessRequestRepository(x),
		credentials: repositories.NewCredentialRepository(x),
		signups:     repositories.NewSignupRepository(x),
		downloads:   repositories.NewDownloadRepository(x),
	}, mock
}

// capture is an sqlmock argument matcher that records the value it was given.
type capture struct {
	value driver.Value
}

func (c *capture) Match(v driver.Value) bool {
	c.value = v
	return true
}

func (c *capture) String() string {
	switch v := c.value.(type) {
	case string:
		return v
	case *string:
		if v != nil {
			return *v
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Side effect recorders
// ---------------------------------------------------------------------------

type recordingShipper struct {
	entries chan *audit.LogEntry
}

func newRecordingShipper() *recordingShipper {
	return &recordingShipper{entries: make(chan *audit.LogEntry, 16)}
}

func (r *recordingShipper) Ship(_ context.Context, e *audit.LogEntry) error {
	r.entries <- e
	return nil
}

func (r *recordingShipper) Close() error { return nil }

func (r *recordingShipper) next(t *testing.T) *audit.LogEntry {
	t.Helper()
	select {
	case e := <-r.entries:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event shipped")
		return nil
	}
}

type recordingNotifier struct {
	notify.Noop
	submitted chan notify.AccessRequestNotice
	approved  chan notify.ApprovalNotice
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		submitted: make(chan notify.AccessRequestNotice, 4),
		approved:  make(chan notify.ApprovalNotice, 4),
	}
}

func (r *recordingNotifier) AccessRequestSubmitted(_ context.Context, n notify.AccessRequestNotice) error {
	r.submitted <- n
	return nil
}

func (r *recordingNotifier) AccessRequestApproved(_ context.Context, n notify.ApprovalNotice) error {
	r.approved <- n
	return nil
}

// memStorage is an in-memory bucket.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	reads   int
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Upload(_ context.Context, key string, r io.Reader, _ int64) (*storage.UploadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return &storage.UploadResult{Key: key, Size: int64(len(data))}, nil
}

func (m *memStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) GetURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, ok := m.objects[key]; !ok {
		return "", storage.ErrNotFound
	}
	return "https://cdn.example.com/" + key + "?sig=test", nil
}

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStorage) GetMetadata(_ context.Context, key string) (*storage.FileMetadata, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.FileMetadata{Key: key, Size: int64(len(data))}, nil
}

// ---------------------------------------------------------------------------
// Masters
// ---------------------------------------------------------------------------

const testContainer = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
  </spine>
</package>`

func testEPUB(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct {
		name, body string
		method     uint16
	}{
		{"mimetype", "application/epub+zip", zip.Store},
		{"META-INF/container.xml", testContainer, zip.Deflate},
		{"OEBPS/content.opf", testOPF, zip.Deflate},
		{"OEBPS/ch1.xhtml", "<html><body><p>Chapter one</p></body></html>", zip.Deflate},
	}
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: f.method})
		require.NoError(t, err)
		_, err = io.WriteString(w, f.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// readZipEntry returns the named entry of an archive, or "" when absent.
func readZipEntry(t *testing.T, data []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(b)
	}
	return ""
}

func newTestCodec(t *testing.T, now clock.Clock) *auth.DownloadTokenCodec {
	t.Helper()
	c, err := auth.NewDownloadTokenCodec(testTokenKey, "manuscript-vault", 0, now)
	require.NoError(t, err)
	return c
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
