package ports

import (
	"context"

	"atrx/internal/domain"
)

// AccountRepository persists the single AccountState snapshot.
// Only the reconciler and the session day-roll write to it.
type AccountRepository interface {
	// LoadAccount retrieves the persisted account state.
	// Returns nil, nil if none has been saved yet.
	LoadAccount(ctx context.Context) (*domain.AccountState, error)
	// SaveAccount durably replaces the account state.
	SaveAccount(ctx context.Context, account *domain.AccountState) error
}

// PositionRepository defines the interface for storing and retrieving positions.
type PositionRepository interface {
	// CreatePosition saves a new position and returns its assigned ID.
	CreatePosition(ctx context.Context, pos *domain.Position) (int64, error)
	// UpdatePosition modifies an existing position.
	UpdatePosition(ctx context.Context, pos *domain.Position) error
	// FindPosition retrieves a position by its unique ID.
	// Returns nil, nil if not found.
	FindPosition(ctx context.Context, id int64) (*domain.Position, error)
	// FindOpenPositions retrieves all open positions, oldest entry first.
	FindOpenPositions(ctx context.Context) ([]*domain.Position, error)
	// FindPositionByOrder retrieves the position opened by a queue order.
	// Returns nil, nil if not found. Used to keep fill application
	// idempotent across reconciler replays.
	FindPositionByOrder(ctx context.Context, orderID string) (*domain.Position, error)
}

// AuditJournal is the append-only sink for per-terminal-order records.
// Records are keyed by order id; appending the same id twice is a no-op.
type AuditJournal interface {
	Append(ctx context.Context, rec *domain.AuditRecord) error
}
