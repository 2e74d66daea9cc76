package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ---------------------------------------------------------------------------
// errors.Is matching
// ---------------------------------------------------------------------------

func TestIs_MatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", TokenExpired())

	assert.True(t, errors.Is(err, ErrToken))
	assert.True(t, errors.Is(err, ErrTokenExpired))
	assert.False(t, errors.Is(err, ErrTokenMalformed))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestIs_AlreadyResolvedIsConflict(t *testing.T) {
	err := Conflict(CodeAlreadyResolved, "Request has already been resolved")

	assert.True(t, errors.Is(err, ErrConflict))
	assert.True(t, errors.Is(err, ErrAlreadyResolved))
}

func TestUnwrap_ExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Render("watermark failed", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "boom")
}

func TestWithCause_DoesNotMutateOriginal(t *testing.T) {
	base := NotFound("Book not found")
	wrapped := base.WithCause(errors.New("sql: no rows"))

	assert.Nil(t, base.Unwrap())
	assert.NotNil(t, wrapped.Unwrap())
}

// ---------------------------------------------------------------------------
// Status mapping
// ---------------------------------------------------------------------------

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad", nil), http.StatusBadRequest},
		{"conflict", Conflict(CodeDuplicatePending, "dup"), http.StatusConflict},
		{"invalid credential", InvalidCredential(), http.StatusUnauthorized},
		{"token", TokenMalformed(nil), http.StatusUnauthorized},
		{"not found", NotFound("nope"), http.StatusNotFound},
		{"forbidden", Forbidden("no"), http.StatusForbidden},
		{"render", Render("bad epub", nil), http.StatusInternalServerError},
		{"plain error", errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestPublicMessage_HidesInternalDetail(t *testing.T) {
	assert.Equal(t, "Internal server error", PublicMessage(Render("no spine", errors.New("opf"))))
	assert.Equal(t, "Internal server error", PublicMessage(errors.New("pq: connection refused")))
	assert.Equal(t, "Invalid access password", PublicMessage(InvalidCredential()))
}
