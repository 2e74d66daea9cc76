package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/api/respond"
	"github.com/grendelpress/manuscript-vault/internal/services"
)

// RequestHandlers handles access request review endpoints
type RequestHandlers struct {
	requests RequestManager
}

// NewRequestHandlers creates a new RequestHandlers instance
func NewRequestHandlers(requests RequestManager) *RequestHandlers {
	return &RequestHandlers{requests: requests}
}

// ResolveRequest is the body of POST /api/v1/admin/access-requests/:id/resolve
type ResolveRequest struct {
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason"`
}

// @Summary      List access requests
// @Description  Lists access requests newest first. Admins see every book; authors see their own books only.
// @Tags         Access Requests
// @Security     Bearer
// @Produce      json
// @Param        book    query  string  false  "Book slug"
// @Param        status  query  string  false  "pending, approved or denied"
// @Param        from    query  string  false  "Created at or after (RFC 3339 or YYYY-MM-DD)"
// @Param        to      query  string  false  "Created at or before (RFC 3339 or YYYY-MM-DD)"
// @Param        limit   query  int     false  "Page size (default 50, max 200)"
// @Param        offset  query  int     false  "Offset"
// @Success      200  {object}  map[string]interface{}  "requests and total"
// @Failure      400  {object}  map[string]interface{}  "Invalid filter"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Router       /api/v1/admin/access-requests [get]
// ListRequestsHandler handles GET /api/v1/admin/access-requests
func (h *RequestHandlers) ListRequestsHandler() gin.HandlerFunc {
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

		requests, total, err := h.requests.List(c.Request.Context(), staffFromContext(c), services.ListRequestsInput{
			BookSlug: c.Query("book"),
			Status:   c.Query("status"),
			From:     from,
			To:       to,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"requests": requests,
			"total":    total,
			"limit":    limit,
			"offset":   offset,
		})
	}
}

// @Summary      Count pending access requests
// @Tags         Access Requests
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Router       /api/v1/admin/access-requests/pending-count [get]
// PendingCountHandler handles GET /api/v1/admin/access-requests/pending-count
func (h *RequestHandlers) PendingCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := h.requests.PendingCount(c.Request.Context(), staffFromContext(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": n})
	}
}

// @Summary      Approve or deny an access request
// @Description  Resolves a pending request. Approval generates a 12 character temporary password valid for 7 days, emails it to the reader and returns it once in this response. A request can be resolved only once.
// @Tags         Access Requests
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string          true  "Access request ID"
// @Param        body  body  ResolveRequest  true  "approve or deny, with an optional reason"
// @Success      200  {object}  map[string]interface{}  "Resolved request, plus temporaryPassword and expiresAt on approval"
// @Failure      400  {object}  map[string]interface{}  "Invalid action"
// @Failure      403  {object}  map[string]interface{}  "Not the book's author"
// @Failure      404  {object}  map[string]interface{}  "Request not found"
// @Failure      409  {object}  map[string]interface{}  "Already resolved"
// @Router       /api/v1/admin/access-requests/{id}/resolve [post]
// ResolveRequestHandler handles POST /api/v1/admin/access-requests/:id/resolve
func (h *RequestHandlers) ResolveRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, "Invalid request body: action is required")
			return
		}

		result, err := h.requests.Resolve(c.Request.Context(), staffFromContext(c), c.Param("id"), services.ResolveInput{
			Action: req.Action,
			Reason: req.Reason,
		})
		if err != nil {
			respond.Error(c, err)
			return
		}

		resp := gin.H{"request": result.Request}
		if result.TemporaryPassword != "" {
			resp["temporaryPassword"] = result.TemporaryPassword
			resp["expiresAt"] = result.ExpiresAt
		}
		c.JSON(http.StatusOK, resp)
	}
}
