package ports

import (
	"context"

	"atrx/internal/domain"
)

// ExecutionTerminal is the boundary to the native trading terminal the
// execution agent drives. Implementations must either fill the order or
// return an error, never silently drop it; the agent converts errors
// into FAILED completions with a reason code.
type ExecutionTerminal interface {
	// Execute places the order and blocks until it fills or fails.
	Execute(ctx context.Context, order *domain.Order) (domain.OrderResult, error)

	// MarkPrice returns the current mark price for a symbol.
	MarkPrice(ctx context.Context, symbol string) (float64, error)
}
