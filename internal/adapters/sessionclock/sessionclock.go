// Package sessionclock decides when a new trading session has started.
// Prop-firm daily limits reset at midnight in the firm's timezone, not
// on a rolling 24-hour window, so the boundary check compares calendar
// days in that timezone.
package sessionclock

import (
	"fmt"
	"time"
)

// Clock reports session boundaries for a fixed timezone.
type Clock struct {
	loc *time.Location
	now func() time.Time // test hook
}

// New creates a session clock for the given IANA timezone name.
func New(timezone string) (*Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid session timezone %q: %w", timezone, err)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return c.now()
}

// IsSessionBoundaryReached reports whether at least one local midnight
// has passed since the given instant. A zero since value means no
// session has ever been observed and counts as a boundary.
func (c *Clock) IsSessionBoundaryReached(since time.Time) bool {
	if since.IsZero() {
		return true
	}
	nowLocal := c.now().In(c.loc)
	sinceLocal := since.In(c.loc)
	ny, nm, nd := nowLocal.Date()
	sy, sm, sd := sinceLocal.Date()
	return ny != sy || nm != sm || nd != sd
}
