// audit.go provides Gin middleware that records successful staff write operations to
// the audit_logs table. Richer domain events (downloads, resolutions with their
// outcome) are shipped by the services themselves; this row is the durable record
// of who called which admin endpoint.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/db/models"
	"github.com/grendelpress/manuscript-vault/internal/safego"
)

// AuditWriter persists audit rows. *repositories.AuditRepository satisfies it.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditResources maps admin path segments to audit resource types. Order matters:
// the first segment found in the route wins, so nested resources come first.
var auditResources = []struct {
	segment  string
	resource string
}{
	{"/access-requests", "access_request"},
	{"/passwords", "book_password"},
	{"/downloads", "download"},
	{"/books", "book"},
}

// AuditMiddleware records authenticated, successful mutations. Reads, failures and
// OPTIONS preflights are skipped. A nil writer disables the middleware.
func AuditMiddleware(writer AuditWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if writer == nil {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		if c.Writer.Status() >= 400 {
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		resourceType, action := auditAction(c.Request.Method, path)

		ipAddress := c.ClientIP()
		entry := &models.AuditLog{
			Action:    action,
			IPAddress: &ipAddress,
			CreatedAt: time.Now().UTC(),
			Metadata: map[string]interface{}{
				"method":      c.Request.Method,
				"path":        c.Request.URL.Path,
				"status_code": c.Writer.Status(),
			},
		}
		if resourceType != "" {
			entry.ResourceType = &resourceType
		}
		if id := c.Param("id"); id != "" {
			entry.ResourceID = &id
		}
		if staffID := contextString(c, ContextStaffID); staffID != "" {
			entry.ActorID = &staffID
		}
		if email := contextString(c, ContextStaffEmail); email != "" {
			entry.ActorEmail = &email
		}
		if method := contextString(c, ContextAuthMethod); method != "" {
			entry.Metadata["auth_method"] = method
		}

		safego.Detached("audit_log "+entry.Action, 5*time.Second, func(ctx context.Context) error {
			return writer.CreateAuditLog(ctx, entry)
		})
	}
}

// auditAction derives the resource type and a dotted action name from the route.
// Action routes (resolve, deactivate) and uploads name their own verb.
func auditAction(method, path string) (string, string) {
	resource := ""
	for _, r := range auditResources {
		if strings.Contains(path, r.segment) {
			resource = r.resource
			break
		}
	}
	if resource == "" {
		return "", method + " " + path
	}

	var verb string
	switch {
	case strings.HasSuffix(path, "/resolve"):
		verb = "resolved"
	case strings.HasSuffix(path, "/deactivate"):
		verb = "deactivated"
	case strings.Contains(path, "/masters/"), strings.HasSuffix(path, "/cover"):
		verb = "uploaded"
	case method == http.MethodPost:
		verb = "created"
	case method == http.MethodPut, method == http.MethodPatch:
		verb = "updated"
	case method == http.MethodDelete:
		verb = "deleted"
	default:
		verb = strings.ToLower(method)
	}
	return resource, resource + "." + verb
}
