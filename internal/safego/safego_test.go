package safego

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not complete within timeout")
	}
}

func TestGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})
	Go(func() { close(done) })
	waitClosed(t, done)
}

func TestGo_RecoversPanic(t *testing.T) {
	done := make(chan struct{})
	// Must not crash the test process
	Go(func() {
		defer close(done)
		panic("intentional panic in test")
	})
	waitClosed(t, done)
}

func TestDetached_ContextHasDeadline(t *testing.T) {
	done := make(chan struct{})
	Detached("notify", time.Minute, func(ctx context.Context) error {
		defer close(done)
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline on the detached context")
		}
		return nil
	})
	waitClosed(t, done)
}

func TestDetached_ErrorAndPanicAreContained(t *testing.T) {
	done := make(chan struct{}, 2)
	Detached("failing", time.Second, func(context.Context) error {
		done <- struct{}{}
		return errors.New("smtp unavailable")
	})
	Detached("panicking", time.Second, func(context.Context) error {
		done <- struct{}{}
		panic("boom")
	})
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("detached task did not run")
		}
	}
}
