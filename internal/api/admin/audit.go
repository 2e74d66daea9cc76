package admin

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
)

// AuditLogHandlers handles the staff audit log endpoint
type AuditLogHandlers struct {
	logs AuditLogReader
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance
func NewAuditLogHandlers(logs AuditLogReader) *AuditLogHandlers {
	return &AuditLogHandlers{logs: logs}
}

// @Summary      List audit logs
// @Description  Pages through staff mutations recorded by the audit middleware, newest first.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        actor          query  string  false  "Staff ID"
// @Param        action         query  string  false  "Action, e.g. access_request.resolved"
// @Param        resource_type  query  string  false  "access_request, book_password, download or book"
// @Param        from           query  string  false  "At or after (RFC 3339 or YYYY-MM-DD)"
// @Param        to             query  string  false  "At or before (RFC 3339 or YYYY-MM-DD)"
// @Param        limit          query  int     false  "Page size (default 50, max 200)"
// @Param        offset         query  int     false  "Offset"
// @Success      200  {object}  map[string]interface{}  "logs and total"
// @Failure      400  {object}  map[string]interface{}  "Invalid filter"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/audit-logs [get]
// ListAuditLogsHandler handles GET /api/v1/admin/audit-logs
func (h *AuditLogHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, ok := pagination(c)
		if !ok {
			return
		}
		from, ok := timeParam(c, "from", false)
		if !ok {
			return
		}
		to, ok := timeParam(c, "to", true)
		if !ok {
			return
		}

		logs, total, err := h.logs.ListAuditLogs(c.Request.Context(), repositories.AuditFilters{
			ActorID:      optionalQuery(c, "actor"),
			Action:       optionalQuery(c, "action"),
			ResourceType: optionalQuery(c, "resource_type"),
			StartDate:    from,
			EndDate:      to,
		}, limit, offset)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to list audit logs", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit logs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"logs":   logs,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	}
}
