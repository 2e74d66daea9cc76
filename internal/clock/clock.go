// Package clock provides the injectable time source used for every expiry comparison.
package clock

import "time"

// Clock returns the current time.
type Clock func() time.Time

// System is the wall clock in UTC.
func System() time.Time {
	return time.Now().UTC()
}

// Fixed returns a Clock that always reports t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// OrSystem returns c, or System when c is nil.
func (c Clock) OrSystem() Clock {
	if c == nil {
		return System
	}
	return c
}

// Now reports the current time of c, falling back to the wall clock when c is nil.
func (c Clock) Now() time.Time {
	return c.OrSystem()()
}
