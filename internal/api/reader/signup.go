package reader

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/api/respond"
	"github.com/grendelpress/manuscript-vault/internal/services"
)

// SignupRequest is the body of POST /api/v1/signup
type SignupRequest struct {
	BookSlug     string `json:"bookSlug"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	ReferredBy   string `json:"referredBy"`
	MailingOptIn bool   `json:"mailingOptIn"`
	Format       string `json:"format"`
}

// @Summary      Sign up and get a download link
// @Description  Verifies the password, records the reader and returns a download URL valid for 30 minutes. A temporary password is consumed by the first successful signup. Repeating a signup with a standing password updates the existing reader record.
// @Tags         Reader
// @Accept       json
// @Produce      json
// @Param        body  body  SignupRequest  true  "Reader details and password"
// @Success      200  {object}  map[string]interface{}  "downloadUrl and expiresAt"
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      401  {object}  map[string]interface{}  "Invalid access password"
// @Failure      404  {object}  map[string]interface{}  "Book not found"
// @Router       /api/v1/signup [post]
// SignupHandler handles POST /api/v1/signup
func (h *Handlers) SignupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SignupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, "Invalid request body")
			return
		}

		result, err := h.signups.Authenticate(c.Request.Context(), services.SignupInput{
			BookSlug:     req.BookSlug,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Email:        req.Email,
			Password:     req.Password,
			ReferredBy:   req.ReferredBy,
			MailingOptIn: req.MailingOptIn,
			Format:       req.Format,
		})
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"downloadUrl": result.DownloadURL,
			"expiresAt":   result.ExpiresAt,
			"format":      result.Format,
		})
	}
}
