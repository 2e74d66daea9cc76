// Package admin implements the staff HTTP handlers: resolving access requests,
// managing standing passwords, uploading masters and covers, and tracing leaked
// copies. Every route is mounted behind StaffAuth and a RequireScope check (see
// internal/middleware). Per-book authorisation (authors may only touch their own
// books) is enforced by the services, not here.
package admin

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/db/models"
	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
	"github.com/grendelpress/manuscript-vault/internal/middleware"
	"github.com/grendelpress/manuscript-vault/internal/services"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// RequestManager lists and resolves access requests.
type RequestManager interface {
	List(ctx context.Context, staff services.Staff, in services.ListRequestsInput) ([]models.AccessRequestWithBook, int, error)
	PendingCount(ctx context.Context, staff services.Staff) (int, error)
	Resolve(ctx context.Context, staff services.Staff, id string, in services.ResolveInput) (*services.ResolveResult, error)
}

// PasswordManager handles the standing password lifecycle.
type PasswordManager interface {
	List(ctx context.Context, staff services.Staff, bookID string) ([]models.BookPassword, error)
	Create(ctx context.Context, staff services.Staff, bookID string, in services.PasswordInput) (*models.BookPassword, error)
	Update(ctx context.Context, staff services.Staff, id string, in services.PasswordUpdate) (*models.BookPassword, error)
	Deactivate(ctx context.Context, staff services.Staff, id string) error
}

// DownloadAuditor reads the download audit trail.
type DownloadAuditor interface {
	ListForBook(ctx context.Context, staff services.Staff, bookID string, limit, offset int) ([]models.DownloadWithSignup, int, error)
	Trace(ctx context.Context, staff services.Staff, watermarkID string) (*services.Trace, error)
}

// SignupExporter exports a book's reader list.
type SignupExporter interface {
	ExportSignups(ctx context.Context, staff services.Staff, bookID string, filter repositories.SignupExportFilter) (*services.SignupExport, error)
}

// BookManager lists books and stores their files.
type BookManager interface {
	List(ctx context.Context, staff services.Staff) ([]models.Book, error)
	UploadMaster(ctx context.Context, staff services.Staff, bookID, format string, data []byte) (*services.UploadResult, error)
	UploadCover(ctx context.Context, staff services.Staff, bookID string, data []byte) (*services.UploadResult, error)
}

// AuditLogReader pages through persisted staff mutations.
type AuditLogReader interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
}

// staffFromContext builds the acting staff member from the identity StaffAuth set.
func staffFromContext(c *gin.Context) services.Staff {
	staff := services.Staff{
		ID:    c.GetString(middleware.ContextStaffID),
		Email: c.GetString(middleware.ContextStaffEmail),
	}
	if scopes, ok := c.Get(middleware.ContextScopes); ok {
		staff.Scopes, _ = scopes.([]string)
	}
	return staff
}

// pagination reads limit and offset query parameters.
func pagination(c *gin.Context) (limit, offset int, ok bool) {
	limit, offset = defaultPageSize, 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return 0, 0, false
		}
		limit = min(n, maxPageSize)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// timeParam parses an RFC 3339 timestamp or a plain date. A plain date used as an
// upper bound covers the whole day.
func timeParam(c *gin.Context, name string, endOfDay bool) (*time.Time, bool) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, true
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":  "Invalid date",
			"fields": gin.H{name: "must be RFC 3339 or YYYY-MM-DD"},
		})
		return nil, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, true
}

// optionalQuery returns a pointer to a trimmed query value, or nil when absent.
func optionalQuery(c *gin.Context, name string) *string {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil
	}
	return &v
}
