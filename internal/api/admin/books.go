package admin

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/api/respond"
	"github.com/grendelpress/manuscript-vault/internal/validation"
)

// BookHandlers handles book listing and file upload endpoints
type BookHandlers struct {
	books         BookManager
	maxMasterSize int64
}

// NewBookHandlers creates a new BookHandlers instance. maxMasterSize caps the
// request body of master uploads in bytes.
func NewBookHandlers(books BookManager, maxMasterSize int64) *BookHandlers {
	return &BookHandlers{books: books, maxMasterSize: maxMasterSize}
}

// @Summary      List books
// @Description  Lists the books the caller may manage: every book for admins, authored books otherwise.
// @Tags         Books
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "books"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permissions"
// @Router       /api/v1/admin/books [get]
// ListBooksHandler handles GET /api/v1/admin/books
func (h *BookHandlers) ListBooksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		books, err := h.books.List(c.Request.Context(), staffFromContext(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"books": books})
	}
}

// @Summary      Upload a master file
// @Description  Stores a new PDF or EPUB master for a book. The file is sent as the raw request body or as a multipart "file" field. It is validated and content-addressed; later downloads use it immediately.
// @Tags         Books
// @Security     Bearer
// @Accept       application/pdf
// @Accept       application/epub+zip
// @Accept       multipart/form-data
// @Produce      json
// @Param        id      path  string  true  "Book ID"
// @Param        format  path  string  true  "pdf or epub"
// @Success      200  {object}  services.UploadResult
// @Failure      400  {object}  map[string]interface{}  "Invalid file"
// @Failure      403  {object}  map[string]interface{}  "Not the book's author"
// @Failure      404  {object}  map[string]interface{}  "Book not found"
// @Failure      413  {object}  map[string]interface{}  "File too large"
// @Router       /api/v1/admin/books/{id}/masters/{format} [put]
// UploadMasterHandler handles PUT /api/v1/admin/books/:id/masters/:format
func (h *BookHandlers) UploadMasterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readUpload(c, h.maxMasterSize)
		if !ok {
			return
		}
		result, err := h.books.UploadMaster(c.Request.Context(), staffFromContext(c), c.Param("id"), c.Param("format"), data)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// @Summary      Upload a cover image
// @Description  Stores a JPEG, PNG or WebP cover for a book, sent as the raw body or a multipart "file" field.
// @Tags         Books
// @Security     Bearer
// @Accept       image/jpeg
// @Accept       image/png
// @Accept       image/webp
// @Accept       multipart/form-data
// @Produce      json
// @Param        id  path  string  true  "Book ID"
// @Success      200  {object}  services.UploadResult
// @Failure      400  {object}  map[string]interface{}  "Invalid image"
// @Failure      403  {object}  map[string]interface{}  "Not the book's author"
// @Failure      404  {object}  map[string]interface{}  "Book not found"
// @Failure      413  {object}  map[string]interface{}  "File too large"
// @Router       /api/v1/admin/books/{id}/cover [put]
// UploadCoverHandler handles PUT /api/v1/admin/books/:id/cover
func (h *BookHandlers) UploadCoverHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := readUpload(c, validation.MaxCoverSize)
		if !ok {
			return
		}
		result, err := h.books.UploadCover(c.Request.Context(), staffFromContext(c), c.Param("id"), data)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// readUpload reads an uploaded file from a multipart "file" field or the raw body,
// rejecting anything over limit bytes.
func readUpload(c *gin.Context, limit int64) ([]byte, bool) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	var src io.Reader = body
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		c.Request.Body = body
		file, _, err := c.Request.FormFile("file")
		if err != nil {
			if isTooLarge(err) {
				tooLarge(c, limit)
				return nil, false
			}
			respond.BadRequest(c, "Multipart upload must include a \"file\" field")
			return nil, false
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		if isTooLarge(err) {
			tooLarge(c, limit)
			return nil, false
		}
		respond.BadRequest(c, "Failed to read upload")
		return nil, false
	}
	if int64(len(data)) > limit {
		tooLarge(c, limit)
		return nil, false
	}
	if len(data) == 0 {
		respond.BadRequest(c, "Upload is empty")
		return nil, false
	}
	return data, true
}

// multipartOverhead leaves room for form boundaries and headers.
const multipartOverhead = 64 * 1024

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func tooLarge(c *gin.Context, limit int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
		"error":     "File too large",
		"max_bytes": limit,
	})
}
