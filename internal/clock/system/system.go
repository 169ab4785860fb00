// Package system provides the wall clock used for run timing and API cache expiry.
package system

import "time"

// Clock reads the wall clock in UTC, so cache expiries and event timestamps
// compare across processes regardless of the host's zone.
type Clock struct {
	now func() time.Time
}

// New returns a Clock backed by time.Now.
func New() *Clock {
	return &Clock{now: time.Now}
}

// Now returns the current UTC time.
func (c *Clock) Now() time.Time {
	if c == nil || c.now == nil {
		return time.Now().UTC()
	}
	return c.now().UTC()
}
