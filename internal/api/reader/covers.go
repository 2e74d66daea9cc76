package reader

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/storage"
	"github.com/grendelpress/manuscript-vault/internal/validation"
)

// ServeCoverHandler streams cover images from the covers bucket.
// Implements: GET /files/<covers bucket>/*key
// Only mounted when local storage has ServeDirectly: true. Masters are never
// served this way.
func ServeCoverHandler(covers storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		contentType := validation.CoverContentType(key)
		if key == "" || contentType == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}

		metadata, err := covers.GetMetadata(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get file metadata"})
			return
		}

		reader, err := covers.Download(c.Request.Context(), key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
			return
		}
		defer reader.Close()

		if metadata.Checksum != "" {
			c.Header("ETag", `"`+metadata.Checksum+`"`)
		}
		c.DataFromReader(http.StatusOK, metadata.Size, contentType, reader, nil)
	}
}
