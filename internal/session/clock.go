// Package session orchestrates a recording session: one shared clock,
// one database row, and the lifecycle of every configured tracker.
package session

import "time"

// Clock is the session's shared time base. It is seeded once when the
// session begins and read through Go's monotonic clock, so every
// tracker stamps events on the same axis and wall-clock adjustments
// cannot reorder streams.
type Clock struct {
	epoch time.Time
}

// NewClock seeds a clock at the current instant.
func NewClock() *Clock {
	return &Clock{epoch: time.Now()}
}

// Now returns seconds elapsed since the session epoch.
func (c *Clock) Now() float64 {
	return time.Since(c.epoch).Seconds()
}

// Epoch returns the wall-clock instant of the session start.
func (c *Clock) Epoch() time.Time {
	return c.epoch
}
