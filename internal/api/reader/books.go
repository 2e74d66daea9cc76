package reader

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/api/respond"
)

// @Summary      Get book details
// @Description  Returns the public title, author, available formats and a cover URL for an active book.
// @Tags         Reader
// @Produce      json
// @Param        slug  path  string  true  "Book slug"
// @Success      200  {object}  services.BookInfo
// @Failure      404  {object}  map[string]interface{}  "Book not found"
// @Router       /api/v1/books/{slug} [get]
// GetBookHandler handles GET /api/v1/books/:slug
func (h *Handlers) GetBookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := h.books.PublicInfo(c.Request.Context(), c.Param("slug"))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}
