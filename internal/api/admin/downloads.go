package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/api/respond"
)

// DownloadHandlers handles the download audit endpoints
type DownloadHandlers struct {
	downloads DownloadAuditor
}

// NewDownloadHandlers creates a new DownloadHandlers instance
func NewDownloadHandlers(downloads DownloadAuditor) *DownloadHandlers {
	return &DownloadHandlers{downloads: downloads}
}

// @Summary      List downloads of a book
// @Description  Lists every watermarked copy issued for a book, newest first, with the reader it went to.
// @Tags         Downloads
// @Security     Bearer
// @Produce      json
// @Param        id      path   string  true   "Book ID"
// @Param        limit   query  int     false  "Page size (default 50, max 200)"
// @Param        offset  query  int     false  "Offset"
// @Success      200  {object}  map[string]interface{}  "downloads and total"
// @Failure      403  {object}  map[string]interface{}  "Not the book's author"
// @Failure      404  {object}  map[string]interface{}  "Book not found"
// @Router       /api/v1/admin/books/{id}/downloads [get]
// ListDownloadsHandler handles GET /api/v1/admin/books/:id/downloads
func (h *DownloadHandlers) ListDownloadsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, ok := pagination(c)
		if !ok {
			return
		}

		downloads, total, err := h.downloads.ListForBook(c.Request.Context(), staffFromContext(c), c.Param("id"), limit, offset)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"downloads": downloads,
			"total":     total,
			"limit":     limit,
			"offset":    offset,
		})
	}
}

// @Summary      Trace a watermark
// @Description  Resolves a watermark id read off a leaked copy to the download record and the reader who signed up for it.
// @Tags         Downloads
// @Security     Bearer
// @Produce      json
// @Param        wmid  path  string  true  "Watermark ID"
// @Success      200  {object}  map[string]interface{}  "download, signup and book"
// @Failure      403  {object}  map[string]interface{}  "Not the book's author"
// @Failure      404  {object}  map[string]interface{}  "Unknown watermark"
// @Router       /api/v1/admin/downloads/trace/{wmid} [get]
// TraceHandler handles GET /api/v1/admin/downloads/trace/:wmid
func (h *DownloadHandlers) TraceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trace, err := h.downloads.Trace(c.Request.Context(), staffFromContext(c), c.Param("wmid"))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"download": trace.Download,
			"signup":   trace.Signup,
			"book":     trace.Book,
		})
	}
}
