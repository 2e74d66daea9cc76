// Package access models the lifecycle of a reader's request for a temporary password.
//
// A request starts pending and is resolved exactly once, to approved or denied.
// Approval issues a temporary credential that is usable until it expires or is
// claimed. The package performs no I/O; callers supply the current time.
package access

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Status represents access-request lifecycle state.
type Status string

const (
	// StatusPending indicates the request awaits review.
	StatusPending Status = "pending"
	// StatusApproved indicates a temporary password was issued.
	StatusApproved Status = "approved"
	// StatusDenied indicates the request was rejected.
	StatusDenied Status = "denied"
)

// Decision represents a review action taken by staff.
type Decision string

const (
	// DecisionApprove accepts a pending request.
	DecisionApprove Decision = "approve"
	// DecisionDeny rejects a pending request.
	DecisionDeny Decision = "deny"
)

// DefaultCredentialValidity is how long an issued temporary password stays usable.
const DefaultCredentialValidity = 7 * 24 * time.Hour

var (
	// ErrInvalidDecision indicates review decision must be approve/deny.
	ErrInvalidDecision = errors.New("action must be approve or deny")
	// ErrEmptyReviewer indicates reviewer identity is required.
	ErrEmptyReviewer = errors.New("reviewer id is required")
	// ErrNotPending indicates resolved requests are immutable.
	ErrNotPending = errors.New("request has already been resolved")
	// ErrAlreadyPending indicates the reader already has an unresolved request.
	ErrAlreadyPending = errors.New("a request for this book is already pending")
	// ErrAlreadyApproved indicates the reader was already issued a password.
	ErrAlreadyApproved = errors.New("your request was already approved, check your email for the access password")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// FieldErrors maps an input field name to what is wrong with it.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email has the shape local@domain.tld.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Submission contains reader-provided fields for a new request.
type Submission struct {
	FirstName string
	LastName  string
	Email     string
}

// NormalizeSubmission canonicalizes and validates a submission. The error, when
// non-nil, is a FieldErrors.
func NormalizeSubmission(in Submission) (Submission, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = NormalizeEmail(in.Email)

	problems := FieldErrors{}
	if in.FirstName == "" {
		problems["firstName"] = "is required"
	}
	if in.LastName == "" {
		problems["lastName"] = "is required"
	}
	switch {
	case in.Email == "":
		problems["email"] = "is required"
	case !ValidEmail(in.Email):
		problems["email"] = "is not a valid email address"
	}
	if len(problems) > 0 {
		return Submission{}, problems
	}
	return in, nil
}

// CheckExisting rejects a new submission when the reader already has an open
// request for the book. existing is the status of that request, or "" for none.
func CheckExisting(existing Status) error {
	switch existing {
	case StatusPending:
		return ErrAlreadyPending
	case StatusApproved:
		return ErrAlreadyApproved
	default:
		return nil
	}
}

// ReviewInput contains fields required to resolve one request.
type ReviewInput struct {
	Decision   Decision
	Reason     string
	ReviewerID string
}

// NormalizeReviewInput canonicalizes and validates review input.
func NormalizeReviewInput(in ReviewInput) (ReviewInput, error) {
	in.ReviewerID = strings.TrimSpace(in.ReviewerID)
	if in.ReviewerID == "" {
		return ReviewInput{}, ErrEmptyReviewer
	}

	in.Decision = Decision(strings.ToLower(strings.TrimSpace(string(in.Decision))))
	if in.Decision != DecisionApprove && in.Decision != DecisionDeny {
		return ReviewInput{}, ErrInvalidDecision
	}

	in.Reason = strings.TrimSpace(in.Reason)
	return in, nil
}

// Outcome is the state a pending request moves to.
type Outcome struct {
	Status     Status
	ResolvedBy string
	ResolvedAt time.Time
	// ExpiresAt is set on approval.
	ExpiresAt *time.Time
	// DenialReason is set on denial when a reason was given.
	DenialReason *string
}

// Review resolves a request currently in state current. Only pending requests can
// be resolved; anything else returns ErrNotPending.
func Review(current Status, in ReviewInput, now time.Time, validity time.Duration) (Outcome, error) {
	normalized, err := NormalizeReviewInput(in)
	if err != nil {
		return Outcome{}, err
	}
	if current != StatusPending {
		return Outcome{}, ErrNotPending
	}
	if validity <= 0 {
		validity = DefaultCredentialValidity
	}

	resolvedAt := now.UTC()
	out := Outcome{ResolvedBy: normalized.ReviewerID, ResolvedAt: resolvedAt}
	switch normalized.Decision {
	case DecisionApprove:
		expires := resolvedAt.Add(validity)
		out.Status = StatusApproved
		out.ExpiresAt = &expires
	case DecisionDeny:
		out.Status = StatusDenied
		if normalized.Reason != "" {
			reason := normalized.Reason
			out.DenialReason = &reason
		}
	}
	return out, nil
}

// CredentialLive reports whether an approved request's temporary password can
// still be used at now: it must be unclaimed and strictly before its expiry.
func CredentialLive(status Status, claimedAt, expiresAt *time.Time, now time.Time) bool {
	if status != StatusApproved || claimedAt != nil || expiresAt == nil {
		return false
	}
	return now.Before(*expiresAt)
}
