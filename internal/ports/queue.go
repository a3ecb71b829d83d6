package ports

import (
	"context"
	"time"

	"atrx/internal/domain"
)

// OrderQueue is the durable, lease-based handoff channel between the
// decision process and the execution agent. The two sides share no memory;
// the queue's storage is the only synchronization primitive between them.
//
// All transitions must be atomic and durable before they are acknowledged:
// a crash between write and acknowledge leaves the order either still
// PENDING, or INFLIGHT with a lease that will expire and be swept.
type OrderQueue interface {
	// Submit durably persists the order with state PENDING before returning.
	// The id is producer-assigned and must be globally unique; resubmitting
	// an existing id fails with ErrDuplicateOrder.
	Submit(ctx context.Context, order *domain.Order) error

	// Claim atomically selects the oldest PENDING order and transitions it
	// to INFLIGHT with a lease owned by consumerID. Two concurrent
	// claimants can never both succeed for the same order. Returns
	// ErrQueueEmpty when nothing is claimable.
	Claim(ctx context.Context, consumerID string) (*domain.Order, error)

	// Complete transitions an INFLIGHT order to DONE or FAILED, but only
	// while consumerID still holds an unexpired lease; otherwise it fails
	// with ErrLeaseLost.
	Complete(ctx context.Context, orderID, consumerID string, state domain.OrderState, result domain.OrderResult) error

	// SweepExpiredLeases moves INFLIGHT orders with expired leases back to
	// PENDING for re-claim, at most maxReclaims times per order; beyond
	// that the order is force-failed with reason LEASE_EXHAUSTED. Returns
	// the ids that were requeued and the ids that were force-failed.
	SweepExpiredLeases(ctx context.Context, maxReclaims int) (requeued, failed []string, err error)

	// PollTerminal waits, bounded by timeout, for the order to reach
	// DONE or FAILED. On timeout it returns ErrIndeterminate: the caller
	// must not resubmit; the order is still owned by the queue.
	PollTerminal(ctx context.Context, orderID string, timeout time.Duration) (*domain.Order, error)

	// Find retrieves an order by id. Returns nil, nil if not found.
	Find(ctx context.Context, orderID string) (*domain.Order, error)

	// UnresolvedCloses returns the position ids referenced by close
	// orders that have not reached a terminal state yet. A position in
	// this set must not be selected for another close: the pending
	// order may still execute.
	UnresolvedCloses(ctx context.Context) ([]int64, error)

	// Terminal retrieves terminal orders not yet archived by the reconciler.
	Terminal(ctx context.Context) ([]*domain.Order, error)

	// MarkArchived records that the reconciler has applied the order.
	// Marking an already-archived order is a no-op.
	MarkArchived(ctx context.Context, orderID string) error
}
