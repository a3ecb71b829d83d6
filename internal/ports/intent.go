package ports

import (
	"context"
	"time"

	"atrx/internal/domain"
)

// IntentSource delivers trade intents from the out-of-scope alpha/AI layer.
// The budget engine treats every intent as untrusted input requiring full
// validation.
type IntentSource interface {
	// NextIntents returns the intents proposed for this cycle.
	// An empty slice is a normal quiet cycle.
	NextIntents(ctx context.Context) ([]*domain.TradeIntent, error)
}

// MarkSource supplies current mark prices to the decision process for
// unrealized PnL and equity computation. Market-data collection itself is
// an out-of-scope collaborator.
type MarkSource interface {
	MarkPrice(ctx context.Context, symbol string) (float64, error)
}

// SessionClock is the external session-schedule collaborator.
type SessionClock interface {
	// IsSessionBoundaryReached reports whether a new trading session has
	// started since the given time.
	IsSessionBoundaryReached(since time.Time) bool
	// Now returns the current time in the session timezone.
	Now() time.Time
}
