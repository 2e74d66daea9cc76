package reader

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/api/respond"
	"github.com/grendelpress/manuscript-vault/internal/services"
)

// WatermarkIDHeader carries the id stamped into the served copy.
const WatermarkIDHeader = "X-Watermark-ID"

// @Summary      Download a watermarked copy
// @Description  Redeems a download token for a freshly watermarked copy of the book. Every call produces a distinct copy and a new download record. The response must not be cached.
// @Tags         Reader
// @Produce      application/pdf
// @Produce      application/epub+zip
// @Param        token  query  string  true  "Download token from /signup"
// @Success      200  {file}    binary                  "Watermarked file"
// @Failure      400  {object}  map[string]interface{}  "Missing token"
// @Failure      401  {object}  map[string]interface{}  "Token malformed or expired"
// @Failure      404  {object}  map[string]interface{}  "Book, reader or master file not found"
// @Failure      500  {object}  map[string]interface{}  "Watermarking failed"
// @Router       /api/v1/download [get]
// DownloadHandler handles GET /api/v1/download?token=
func (h *Handlers) DownloadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			respond.BadRequest(c, "Download token is required")
			return
		}

		result, err := h.downloads.Download(c.Request.Context(), token, services.ClientInfo{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", result.Filename))
		c.Header("Cache-Control", "no-store")
		c.Header(WatermarkIDHeader, result.WatermarkID)
		c.Data(http.StatusOK, result.ContentType, result.Content)
	}
}
