package reader

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/api/respond"
	"github.com/grendelpress/manuscript-vault/internal/services"
)

// SubmitAccessRequest is the body of POST /api/v1/access-requests
type SubmitAccessRequest struct {
	BookSlug  string `json:"bookSlug"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// @Summary      Request temporary access
// @Description  Records a pending request for a temporary password. The book's author is notified by email. Only one pending request per reader and book is allowed.
// @Tags         Reader
// @Accept       json
// @Produce      json
// @Param        body  body  SubmitAccessRequest  true  "Reader details"
// @Success      201  {object}  map[string]interface{}  "requestId of the new request"
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      404  {object}  map[string]interface{}  "Book not found"
// @Failure      409  {object}  map[string]interface{}  "A request is already pending or approved"
// @Router       /api/v1/access-requests [post]
// SubmitAccessRequestHandler handles POST /api/v1/access-requests
func (h *Handlers) SubmitAccessRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitAccessRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, "Invalid request body")
			return
		}

		created, err := h.requests.Submit(c.Request.Context(), services.SubmitInput{
			BookSlug:  req.BookSlug,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
		})
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"requestId": created.ID})
	}
}
