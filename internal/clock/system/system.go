// Package system provides the wall clock used to stamp crawled records.
package system

import "time"

// Clock implements crawler.Clock. Times are UTC and truncated to the
// configured resolution so stored timestamps round-trip through JSON and
// Postgres unchanged.
type Clock struct {
	resolution time.Duration
}

// New returns a Clock with one second resolution.
func New() *Clock {
	return NewWithResolution(time.Second)
}

// NewWithResolution returns a Clock truncating to d. A non-positive d keeps
// full precision.
func NewWithResolution(d time.Duration) *Clock {
	return &Clock{resolution: d}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.resolution > 0 {
		now = now.Truncate(c.resolution)
	}
	return now
}
