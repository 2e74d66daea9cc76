// access_expiry_reminder.go implements the AccessExpiryReminder background job, which
// periodically scans for approved temporary passwords that are still unclaimed and
// about to lapse, and reminds the reader once. Reminder state is persisted in the
// access_requests.reminder_sent_at column so each reader is emailed at most once
// even across restarts. With notify.Noop the job still runs but sends nothing.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/grendelpress/manuscript-vault/internal/clock"
	"github.com/grendelpress/manuscript-vault/internal/config"
	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
	"github.com/grendelpress/manuscript-vault/internal/notify"
)

// AccessExpiryReminder periodically emails readers whose temporary password expires soon.
type AccessExpiryReminder struct {
	requests *repositories.AccessRequestRepository
	notifier notify.Notifier
	now      clock.Clock
	interval time.Duration
	window   time.Duration
	stopChan chan struct{}
}

// NewAccessExpiryReminder creates a reminder job. Non-positive interval or window
// settings default to 24 hours.
func NewAccessExpiryReminder(
	requests *repositories.AccessRequestRepository,
	notifier notify.Notifier,
	cfg *config.AccessConfig,
	now clock.Clock,
) *AccessExpiryReminder {
	interval := cfg.ReminderCheckIntervalHours
	if interval <= 0 {
		interval = 24
	}
	window := cfg.ReminderWindowHours
	if window <= 0 {
		window = 24
	}
	return &AccessExpiryReminder{
		requests: requests,
		notifier: notifier,
		now:      now.OrSystem(),
		interval: time.Duration(interval) * time.Hour,
		window:   time.Duration(window) * time.Hour,
		stopChan: make(chan struct{}),
	}
}

// Start runs an initial check immediately, then repeats on the configured interval.
// The loop exits when ctx is cancelled or Stop() is called.
func (r *AccessExpiryReminder) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("access expiry reminder started", "interval", r.interval, "window", r.window)

	r.runCheck(ctx)

	for {
		select {
		case <-ticker.C:
			r.runCheck(ctx)
		case <-r.stopChan:
			slog.Info("access expiry reminder stopped")
			return
		case <-ctx.Done():
			slog.Info("access expiry reminder context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (r *AccessExpiryReminder) Stop() {
	close(r.stopChan)
}

// runCheck finds expiring requests and reminds each reader. A failed email leaves
// the request unmarked so the next run retries it.
func (r *AccessExpiryReminder) runCheck(ctx context.Context) {
	now := r.now()
	reqs, err := r.requests.ListExpiringUnreminded(ctx, now, now.Add(r.window))
	if err != nil {
		slog.Error("access expiry reminder: failed to query expiring requests", "error", err)
		return
	}
	if len(reqs) == 0 {
		return
	}

	slog.Info("access expiry reminder: found expiring temporary passwords", "count", len(reqs))

	for _, req := range reqs {
		if req.PasswordExpiresAt == nil {
			continue
		}
		err := r.notifier.TemporaryAccessExpiring(ctx, notify.ExpiryNotice{
			To:         req.Email,
			ReaderName: req.FirstName,
			BookTitle:  req.BookTitle,
			BookSlug:   req.BookSlug,
			ExpiresAt:  *req.PasswordExpiresAt,
		})
		if err != nil {
			slog.Warn("access expiry reminder: failed to send reminder", "request_id", req.ID, "error", err)
			continue
		}
		if err := r.requests.MarkReminderSent(ctx, req.ID, now); err != nil {
			slog.Error("access expiry reminder: failed to mark reminder sent", "request_id", req.ID, "error", err)
		}
	}
}
