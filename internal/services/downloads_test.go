package services

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grendelpress/manuscript-vault/internal/apperr"
	"github.com/grendelpress/manuscript-vault/internal/audit"
	"github.com/grendelpress/manuscript-vault/internal/auth"
	"github.com/grendelpress/manuscript-vault/internal/clock"
	"github.com/grendelpress/manuscript-vault/internal/db/models"
	"github.com/grendelpress/manuscript-vault/internal/storage"
	"github.com/grendelpress/manuscript-vault/internal/watermark"
	"github.com/grendelpress/manuscript-vault/pkg/checksum"
)

type downloadFixture struct {
	svc     *DownloadService
	codec   *auth.DownloadTokenCodec
	mock    sqlmock.Sqlmock
	bucket  *memStorage
	shipper *recordingShipper
}

func newDownloadFixture(t *testing.T) *downloadFixture {
	t.Helper()
	r, mock := newRepos(t)
	now := clock.Fixed(testNow)
	codec := newTestCodec(t, now)
	bucket := newMemStorage()
	bucket.objects["books/book-1/master.epub"] = testEPUB(t)
	shipper := newRecordingShipper()
	svc := NewDownloadService(codec, r.books, r.signups, r.downloads,
		storage.NewMasterCache(bucket, 4, time.Minute), watermark.NewRenderer(), shipper, now)
	return &downloadFixture{svc: svc, codec: codec, mock: mock, bucket: bucket, shipper: shipper}
}

func (f *downloadFixture) token(t *testing.T, format models.FileFormat) string {
	t.Helper()
	tok, _, err := f.codec.Mint("signup-1", "book-1", format)
	require.NoError(t, err)
	return tok
}

func (f *downloadFixture) expectSignupAndBook(book []driver.Value) {
	f.mock.ExpectQuery("FROM signups").
		WithArgs("signup-1").
		WillReturnRows(sqlmock.NewRows(signupCols).
			AddRow("signup-1", "book-1", "ann@example.com", "Ann", "Reader", "ARC", true, "ARC Readers", testNow, testNow))
	f.mock.ExpectQuery("FROM books WHERE id").
		WithArgs("book-1").
		WillReturnRows(bookRows(book))
}

// ---------------------------------------------------------------------------
// Download
// ---------------------------------------------------------------------------

func TestDownload_StampsAndRecordsEPUB(t *testing.T) {
	f := newDownloadFixture(t)
	f.expectSignupAndBook(sampleBookRow(true))

	wmid := &capture{}
	sum := &capture{}
	f.mock.ExpectExec("INSERT INTO downloads").
		WithArgs(sqlmock.AnyArg(), "signup-1", "book-1", wmid, "epub", "203.0.113.9", "test-agent", sum, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := f.svc.Download(context.Background(), f.token(t, models.FormatEPUB),
		ClientInfo{IP: "203.0.113.9", UserAgent: "test-agent"})
	require.NoError(t, err)

	assert.Equal(t, "application/epub+zip", res.ContentType)
	assert.Equal(t, "sample-GP-stamped.epub", res.Filename)
	assert.Len(t, res.WatermarkID, auth.WatermarkIDLength)
	assert.Equal(t, res.WatermarkID, wmid.String())
	assert.Equal(t, checksum.Sum(res.Content), sum.String())

	page := readZipEntry(t, res.Content, "OEBPS/watermark.xhtml")
	assert.True(t, containsAll(page, "ann@example.com", "Sample", res.WatermarkID), "watermark page: %s", page)

	entry := f.shipper.next(t)
	assert.Equal(t, audit.ActionDownloadIssued, entry.Action)
	assert.Equal(t, res.WatermarkID, entry.Metadata["watermark_id"])
	assert.Equal(t, "203.0.113.9", entry.IPAddress)
}

// Every download of the same master gets its own watermark id, stamped into its own bytes.
func TestDownload_WatermarkIDsAreUnique(t *testing.T) {
	f := newDownloadFixture(t)
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		f.expectSignupAndBook(sampleBookRow(true))
		f.mock.ExpectExec("INSERT INTO downloads").WillReturnResult(sqlmock.NewResult(0, 1))

		res, err := f.svc.Download(context.Background(), f.token(t, models.FormatEPUB), ClientInfo{})
		require.NoError(t, err)
		assert.False(t, seen[res.WatermarkID], "watermark id %s repeated", res.WatermarkID)

		page := readZipEntry(t, res.Content, "OEBPS/watermark.xhtml")
		assert.Contains(t, page, res.WatermarkID, "download %d carries its own id", i)
		for prev := range seen {
			assert.NotContains(t, page, prev, "download %d carries an earlier id", i)
		}
		seen[res.WatermarkID] = true
		f.shipper.next(t)
	}
	assert.Equal(t, 1, f.bucket.reads, "master should be read from storage once")
}

func TestDownload_ExpiredToken(t *testing.T) {
	f := newDownloadFixture(t)
	early := newTestCodec(t, clock.Fixed(testNow.Add(-31*time.Minute)))
	tok, _, err := early.Mint("signup-1", "book-1", models.FormatPDF)
	require.NoError(t, err)

	_, err = f.svc.Download(context.Background(), tok, ClientInfo{})
	assert.ErrorIs(t, err, apperr.ErrTokenExpired)
}

func TestDownload_MalformedToken(t *testing.T) {
	f := newDownloadFixture(t)
	_, err := f.svc.Download(context.Background(), "not.a.token", ClientInfo{})
	assert.ErrorIs(t, err, apperr.ErrTokenMalformed)
}

func TestDownload_UnknownSignup(t *testing.T) {
	f := newDownloadFixture(t)
	f.mock.ExpectQuery("FROM signups").WillReturnRows(sqlmock.NewRows(signupCols))

	_, err := f.svc.Download(context.Background(), f.token(t, models.FormatPDF), ClientInfo{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDownload_InactiveBook(t *testing.T) {
	f := newDownloadFixture(t)
	f.expectSignupAndBook(sampleBookRow(false))

	_, err := f.svc.Download(context.Background(), f.token(t, models.FormatPDF), ClientInfo{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDownload_EPUBNotAvailable(t *testing.T) {
	f := newDownloadFixture(t)
	row := sampleBookRow(true)
	row[7] = nil
	f.expectSignupAndBook(row)

	_, err := f.svc.Download(context.Background(), f.token(t, models.FormatEPUB), ClientInfo{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDownload_MissingMasterIsNotFound(t *testing.T) {
	f := newDownloadFixture(t)
	delete(f.bucket.objects, "books/book-1/master.epub")
	f.expectSignupAndBook(sampleBookRow(true))

	_, err := f.svc.Download(context.Background(), f.token(t, models.FormatEPUB), ClientInfo{})

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindNotFound, ae.Kind)
	assert.Equal(t, apperr.CodeMissingMaster, ae.Code)
}

// A master that cannot be stamped is never served and never recorded.
func TestDownload_RenderFailure(t *testing.T) {
	f := newDownloadFixture(t)
	f.bucket.objects["books/book-1/master.pdf"] = []byte("%PDF-1.7 truncated garbage")
	f.expectSignupAndBook(sampleBookRow(true))

	res, err := f.svc.Download(context.Background(), f.token(t, models.FormatPDF), ClientInfo{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperr.ErrRender)
}

// ---------------------------------------------------------------------------
// Trace / ListForBook
// ---------------------------------------------------------------------------

func traceRow() []driver.Value {
	return []driver.Value{
		"dl-1", "signup-1", "book-1", "Ab3dE6gH", "pdf", "203.0.113.9", "test-agent",
		"abc123", testNow, "ann@example.com", "Ann", "Reader",
	}
}

func TestTrace_ResolvesWatermark(t *testing.T) {
	f := newDownloadFixture(t)
	f.mock.ExpectQuery("WHERE d.watermark_uid").
		WithArgs("Ab3dE6gH").
		WillReturnRows(sqlmock.NewRows(downloadCols).AddRow(traceRow()...))
	f.mock.ExpectQuery("FROM books WHERE id").WillReturnRows(bookRows(sampleBookRow(true)))
	f.mock.ExpectQuery("FROM signups").
		WillReturnRows(sqlmock.NewRows(signupCols).
			AddRow("signup-1", "book-1", "ann@example.com", "Ann", "Reader", "ARC", true, "ARC Readers", testNow, testNow))

	tr, err := f.svc.Trace(context.Background(), authorStaff, " Ab3dE6gH ")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", tr.Download.Email)
	assert.Equal(t, "ARC", tr.Signup.ReferredBy)
	assert.Equal(t, "sample", tr.Book.Slug)
}

func TestTrace_OtherAuthorSeesNotFound(t *testing.T) {
	f := newDownloadFixture(t)
	f.mock.ExpectQuery("WHERE d.watermark_uid").
		WillReturnRows(sqlmock.NewRows(downloadCols).AddRow(traceRow()...))
	f.mock.ExpectQuery("FROM books WHERE id").WillReturnRows(bookRows(sampleBookRow(true)))

	_, err := f.svc.Trace(context.Background(), otherStaff, "Ab3dE6gH")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTrace_InvalidID(t *testing.T) {
	f := newDownloadFixture(t)
	_, err := f.svc.Trace(context.Background(), adminStaff, "short")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestListForBook(t *testing.T) {
	f := newDownloadFixture(t)
	f.mock.ExpectQuery("FROM books WHERE id").WillReturnRows(bookRows(sampleBookRow(true)))
	f.mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	f.mock.ExpectQuery("FROM downloads d").
		WithArgs("book-1", 50, 0).
		WillReturnRows(sqlmock.NewRows(downloadCols).AddRow(traceRow()...))

	rows, total, err := f.svc.ListForBook(context.Background(), adminStaff, "book-1", 0, -3)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, rows, 1)
}
