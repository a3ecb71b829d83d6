package sessionclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clockAt(t *testing.T, timezone string, now time.Time) *Clock {
	t.Helper()
	c, err := New(timezone)
	require.NoError(t, err)
	c.now = func() time.Time { return now }
	return c
}

func TestSameLocalDayIsNotABoundary(t *testing.T) {
	now := time.Date(2024, 3, 15, 23, 50, 0, 0, time.UTC)
	c := clockAt(t, "UTC", now)

	since := time.Date(2024, 3, 15, 0, 5, 0, 0, time.UTC)
	assert.False(t, c.IsSessionBoundaryReached(since))
}

func TestMidnightCrossingIsABoundary(t *testing.T) {
	now := time.Date(2024, 3, 16, 0, 1, 0, 0, time.UTC)
	c := clockAt(t, "UTC", now)

	since := time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC)
	assert.True(t, c.IsSessionBoundaryReached(since))
}

func TestZeroSinceCountsAsBoundary(t *testing.T) {
	c := clockAt(t, "UTC", time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	assert.True(t, c.IsSessionBoundaryReached(time.Time{}))
}

func TestBoundaryUsesSessionTimezoneNotUTC(t *testing.T) {
	// 23:30 and 00:30 UTC straddle UTC midnight but both fall on the
	// same calendar day in New York (19:30 and 20:30 local).
	now := time.Date(2024, 3, 16, 0, 30, 0, 0, time.UTC)
	c := clockAt(t, "America/New_York", now)

	since := time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC)
	assert.False(t, c.IsSessionBoundaryReached(since))

	// New York midnight is 04:00 UTC in March; crossing it is a boundary.
	c.now = func() time.Time { return time.Date(2024, 3, 16, 4, 30, 0, 0, time.UTC) }
	assert.True(t, c.IsSessionBoundaryReached(since))
}

func TestInvalidTimezoneRejected(t *testing.T) {
	_, err := New("Mars/Olympus_Mons")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session timezone")
}
