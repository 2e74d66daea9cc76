package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grendelpress/manuscript-vault/internal/api/respond"
	"github.com/grendelpress/manuscript-vault/internal/services"
)

// PasswordHandlers handles standing password management endpoints
type PasswordHandlers struct {
	passwords PasswordManager
}

// NewPasswordHandlers creates a new PasswordHandlers instance
func NewPasswordHandlers(passwords PasswordManager) *PasswordHandlers {
	return &PasswordHandlers{passwords: passwords}
}

// CreatePasswordRequest is the body of POST /api/v1/admin/books/:id/passwords
type CreatePasswordRequest struct {
	Label            string `json:"label" binding:"required"`
	Password         string `json:"password" binding:"required"`
	DistributionType string `json:"distribution_type"`
}

// UpdatePasswordRequest is the body of PUT /api/v1/admin/passwords/:id.
// Omitted fields are left unchanged.
type UpdatePasswordRequest struct {
	Label            *string `json:"label"`
	Password         *string `json:"password"`
	DistributionType *string `json:"distribution_type"`
	IsActive         *bool   `json:"is_active"`
}

// @Summary      List standing passwords
// @Description  Lists every standing password of a book, active and inactive. Hashes are never returned.
// @Tags         Passwords
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Book ID"
// @Success      200  {object}  map[string]interface{}  "passwords"
// @Failure      403  {object}  map[string]interface{}  "Not the book's author"
// @Failure      404  {object}  map[string]interface{}  "Book not found"
// @Router       /api/v1/admin/books/{id}/passwords [get]
// ListPasswordsHandler handles GET /api/v1/admin/books/:id/passwords
func (h *PasswordHandlers) ListPasswordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		passwords, err := h.passwords.List(c.Request.Context(), staffFromContext(c), c.Param("id"))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"passwords": passwords})
	}
}

// @Summary      Create a standing password
// @Description  Hashes and stores a new standing password for a distribution channel (arc, hwa, giveaway, other).
// @Tags         Passwords
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                 true  "Book ID"
// @Param        body  body  CreatePasswordRequest  true  "Password details"
// @Success      201  {object}  models.BookPassword
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      403  {object}  map[string]interface{}  "Not the book's author"
// @Failure      404  {object}  map[string]interface{}  "Book not found"
// @Router       /api/v1/admin/books/{id}/passwords [post]
// CreatePasswordHandler handles POST /api/v1/admin/books/:id/passwords
func (h *PasswordHandlers) CreatePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, "Invalid request body: label and password are required")
			return
		}

		created, err := h.passwords.Create(c.Request.Context(), staffFromContext(c), c.Param("id"), services.PasswordInput{
			Label:            req.Label,
			Password:         req.Password,
			DistributionType: req.DistributionType,
		})
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

// @Summary      Update a standing password
// @Tags         Passwords
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                 true  "Password ID"
// @Param        body  body  UpdatePasswordRequest  true  "Fields to change"
// @Success      200  {object}  models.BookPassword
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      403  {object}  map[string]interface{}  "Not the book's author"
// @Failure      404  {object}  map[string]interface{}  "Password not found"
// @Router       /api/v1/admin/passwords/{id} [put]
// UpdatePasswordHandler handles PUT /api/v1/admin/passwords/:id
func (h *PasswordHandlers) UpdatePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdatePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, "Invalid request body")
			return
		}

		updated, err := h.passwords.Update(c.Request.Context(), staffFromContext(c), c.Param("id"), services.PasswordUpdate{
			Label:            req.Label,
			Password:         req.Password,
			DistributionType: req.DistributionType,
			IsActive:         req.IsActive,
		})
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// @Summary      Deactivate a standing password
// @Description  Stops a standing password from unlocking the book. Passwords are never hard-deleted so past signups keep their label.
// @Tags         Passwords
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Password ID"
// @Success      200  {object}  map[string]interface{}  "Deactivated"
// @Failure      403  {object}  map[string]interface{}  "Not the book's author"
// @Failure      404  {object}  map[string]interface{}  "Password not found"
// @Router       /api/v1/admin/passwords/{id}/deactivate [post]
// DeactivatePasswordHandler handles POST /api/v1/admin/passwords/:id/deactivate
func (h *PasswordHandlers) DeactivatePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.passwords.Deactivate(c.Request.Context(), staffFromContext(c), c.Param("id")); err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Password deactivated"})
	}
}
