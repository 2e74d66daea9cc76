// Package safego provides panic-recovering goroutine launchers for the vault's
// fire-and-forget side effects: reader and author emails, audit shipping and
// audit_logs rows.
package safego

import (
	"context"
	"log/slog"
	"time"
)

// Go launches fn in a new goroutine. If fn panics, the panic is recovered and
// logged rather than crashing the process.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}

// Detached runs fn on a panic-safe goroutine with a fresh context bounded by
// timeout, independent of any request context since the response may already
// be written. Errors are logged under name.
func Detached(name string, timeout time.Duration, fn func(ctx context.Context) error) {
	Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			slog.Warn("background task failed", "task", name, "error", err)
		}
	})
}
