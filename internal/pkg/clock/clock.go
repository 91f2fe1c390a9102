package clock

import "time"

// Clocker abstracts time so callers can replace real time in tests.
type Clocker interface {
	// Now returns the current time.
	Now() time.Time
	// After waits for d to elapse and then sends the current time on the
	// returned channel.
	After(d time.Duration) <-chan time.Time
}

// TimeClocker is the production clock implementation backed by the time package.
type TimeClocker struct{}

// New returns a TimeClocker that reads the current system time.
func New() *TimeClocker {
	return &TimeClocker{}
}

// Now returns the current system time.
func (*TimeClocker) Now() time.Time {
	return time.Now()
}

// After returns a channel that fires once d has elapsed.
func (*TimeClocker) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
