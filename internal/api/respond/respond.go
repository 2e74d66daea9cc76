// Package respond writes service errors as JSON responses. Every handler package
// reports failures through Error so clients see one error shape:
//
//	{"error": "...", "code": "...", "fields": {...}}
//
// code and fields are omitted when the error carries none.
package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/apperr"
)

// Error maps err to its HTTP status and writes the public message. Server-side
// failures are logged with their cause; the cause never reaches the client.
func Error(c *gin.Context, err error) {
	status := apperr.StatusCode(err)
	body := gin.H{"error": apperr.PublicMessage(err)}

	var e *apperr.Error
	if errors.As(err, &e) {
		if e.Code != "" {
			body["code"] = e.Code
		}
		if len(e.Fields) > 0 {
			body["fields"] = e.Fields
		}
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"path", c.FullPath(), "kind", apperr.KindOf(err), "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

// BadRequest writes a 400 for input the handler rejected before reaching a service.
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}
