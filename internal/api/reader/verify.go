package reader

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/api/respond"
)

// VerifyPasswordRequest is the body of POST /api/v1/verify-password
type VerifyPasswordRequest struct {
	BookSlug   string `json:"bookSlug"`
	Password   string `json:"password"`
	ReferredBy string `json:"referredBy"`
}

// @Summary      Check a book password
// @Description  Reports whether a password unlocks the book and which kind of credential matched. Nothing is consumed; a temporary password stays claimable.
// @Tags         Reader
// @Accept       json
// @Produce      json
// @Param        body  body  VerifyPasswordRequest  true  "Password to check"
// @Success      200  {object}  map[string]interface{}  "valid and type (standing or temporary)"
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      401  {object}  map[string]interface{}  "Invalid access password"
// @Failure      404  {object}  map[string]interface{}  "Book not found"
// @Router       /api/v1/verify-password [post]
// VerifyPasswordHandler handles POST /api/v1/verify-password
func (h *Handlers) VerifyPasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, "Invalid request body")
			return
		}

		result, err := h.verifier.VerifyForBook(c.Request.Context(), req.BookSlug, req.Password, req.ReferredBy)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if !result.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{
				"valid": false,
				"error": "Invalid access password",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"valid": true,
			"type":  result.Kind,
		})
	}
}
