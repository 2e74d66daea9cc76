// Package apperr defines the error taxonomy shared by the services and HTTP layers.
// Services return *Error values classified by Kind; handlers translate the kind to
// an HTTP status with StatusCode and never inspect messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and status mapping.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindConflict          Kind = "conflict"
	KindInvalidCredential Kind = "invalid_credential"
	KindToken             Kind = "token"
	KindNotFound          Kind = "not_found"
	KindRender            Kind = "render"
	KindForbidden         Kind = "forbidden"
	KindInternal          Kind = "internal"
)

// Codes refine a Kind where callers need to tell cases apart.
const (
	CodeTokenMalformed   = "token_malformed"
	CodeTokenExpired     = "token_expired"
	CodeAlreadyResolved  = "already_resolved"
	CodeDuplicatePending = "duplicate_pending"
	CodeAlreadyApproved  = "already_approved"
	CodeMissingMaster    = "missing_master"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Fields carries per-field validation detail (field name → problem).
	Fields map[string]string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error with the same Kind and, when set on target, the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

// Sentinels for errors.Is checks. Compare with errors.Is(err, apperr.ErrTokenExpired).
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential}
	ErrToken             = &Error{Kind: KindToken}
	ErrTokenMalformed    = &Error{Kind: KindToken, Code: CodeTokenMalformed}
	ErrTokenExpired      = &Error{Kind: KindToken, Code: CodeTokenExpired}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrRender            = &Error{Kind: KindRender}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrAlreadyResolved   = &Error{Kind: KindConflict, Code: CodeAlreadyResolved}
)

// Validation reports malformed input. fields may be nil.
func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// Conflict reports a state conflict such as a duplicate or already-resolved request.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// InvalidCredential is deliberately generic so callers cannot tell which credential class was tried.
func InvalidCredential() *Error {
	return &Error{Kind: KindInvalidCredential, Message: "Invalid access password"}
}

// TokenMalformed reports a token that failed to decode or verify.
func TokenMalformed(cause error) *Error {
	return &Error{Kind: KindToken, Code: CodeTokenMalformed, Message: "Invalid download token", cause: cause}
}

// TokenExpired reports a token whose expiry has passed.
func TokenExpired() *Error {
	return &Error{Kind: KindToken, Code: CodeTokenExpired, Message: "Download link has expired"}
}

// NotFound reports a missing resource.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Render wraps a watermarking failure.
func Render(message string, cause error) *Error {
	return &Error{Kind: KindRender, Message: message, cause: cause}
}

// Forbidden reports an authenticated caller acting outside its permissions.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Internal wraps an unexpected failure. The message is safe to show to clients.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, cause: cause}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StatusCode maps err to an HTTP status.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidCredential, KindToken:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-safe message for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		switch e.Kind {
		case KindRender, KindInternal:
			return "Internal server error"
		}
		return e.Message
	}
	return "Internal server error"
}
