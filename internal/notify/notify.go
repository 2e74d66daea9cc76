// Package notify sends the vault's transactional emails: new access requests to
// authors, approvals (with the temporary password) to readers, and expiry
// reminders. Delivery is best effort; callers log failures and move on.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/grendelpress/manuscript-vault/internal/config"
)

// Email kinds, used as the metric label and in logs
const (
	KindAccessRequest = "access_request"
	KindApproval      = "approval"
	KindExpiry        = "expiry_reminder"
)

// AccessRequestNotice tells an author (or the press admin) that a reader asked for access.
type AccessRequestNotice struct {
	To             string
	AuthorName     string
	BookTitle      string
	RequesterName  string
	RequesterEmail string
	RequestedAt    time.Time
}

// ApprovalNotice carries a freshly issued temporary password to the reader.
type ApprovalNotice struct {
	To                string
	ReaderName        string
	BookTitle         string
	BookSlug          string
	TemporaryPassword string
	ExpiresAt         time.Time
}

// ExpiryNotice reminds a reader that an unused temporary password is about to lapse.
type ExpiryNotice struct {
	To         string
	ReaderName string
	BookTitle  string
	BookSlug   string
	ExpiresAt  time.Time
}

// Notifier delivers the vault's emails.
type Notifier interface {
	AccessRequestSubmitted(ctx context.Context, n AccessRequestNotice) error
	AccessRequestApproved(ctx context.Context, n ApprovalNotice) error
	TemporaryAccessExpiring(ctx context.Context, n ExpiryNotice) error
}

// New returns an SMTP notifier, or Noop when notifications are disabled or no
// SMTP host is configured.
func New(cfg *config.NotificationsConfig) Notifier {
	if !cfg.Enabled {
		slog.Info("notifications disabled (notifications.enabled=false)")
		return Noop{}
	}
	if cfg.SMTP.Host == "" {
		slog.Warn("notifications disabled (notifications.smtp.host not set)")
		return Noop{}
	}
	return NewSMTPNotifier(cfg)
}

// Noop discards every notification.
type Noop struct{}

func (Noop) AccessRequestSubmitted(context.Context, AccessRequestNotice) error { return nil }
func (Noop) AccessRequestApproved(context.Context, ApprovalNotice) error       { return nil }
func (Noop) TemporaryAccessExpiring(context.Context, ExpiryNotice) error       { return nil }
