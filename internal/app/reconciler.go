package app

import (
	"context"
	"fmt"
	"time"

	"atrx/config"
	"atrx/internal/domain"
	"atrx/internal/ports"
	"atrx/internal/risk"
)

// Reconciler drains terminal queue orders, applies fills to position
// state, updates the account, feeds the result into the circuit breaker,
// and archives each order exactly once. It is the single writer of
// account and position state.
type Reconciler struct {
	policy    *config.Policy
	logger    ports.Logger
	queue     ports.OrderQueue
	accounts  ports.AccountRepository
	positions ports.PositionRepository
	journal   ports.AuditJournal
	marks     ports.MarkSource
	breaker   *risk.CircuitBreaker
}

// NewReconciler creates a reconciler over the shared stores.
func NewReconciler(
	policy *config.Policy,
	logger ports.Logger,
	queue ports.OrderQueue,
	accounts ports.AccountRepository,
	positions ports.PositionRepository,
	journal ports.AuditJournal,
	marks ports.MarkSource,
	breaker *risk.CircuitBreaker,
) *Reconciler {
	return &Reconciler{
		policy:    policy,
		logger:    logger,
		queue:     queue,
		accounts:  accounts,
		positions: positions,
		journal:   journal,
		marks:     marks,
		breaker:   breaker,
	}
}

// Drain processes all unarchived terminal orders. Reprocessing a
// terminal order is a no-op: position application is guarded by lookups,
// the journal insert ignores duplicate ids, and the archive flag is the
// outer idempotency barrier. Returns the number of orders applied.
func (r *Reconciler) Drain(ctx context.Context) (int, error) {
	orders, err := r.queue.Terminal(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch terminal orders: %w", err)
	}

	applied := 0
	for _, order := range orders {
		if err := r.apply(ctx, order); err != nil {
			// Stop at the first failure so ordering is preserved; the
			// remaining orders stay unarchived for the next drain.
			return applied, fmt.Errorf("failed to reconcile order %s: %w", order.ID, err)
		}
		if err := r.queue.MarkArchived(ctx, order.ID); err != nil {
			return applied, fmt.Errorf("failed to archive order %s: %w", order.ID, err)
		}
		applied++
	}
	return applied, nil
}

func (r *Reconciler) apply(ctx context.Context, order *domain.Order) error {
	account, err := r.accounts.LoadAccount(ctx)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("no account state to reconcile against: %w", ports.ErrNotFound)
	}

	switch order.State {
	case domain.OrderDone:
		if order.ClosePositionID != 0 {
			err = r.applyClose(ctx, order, account)
		} else {
			err = r.applyOpen(ctx, order)
		}
		if err != nil {
			return err
		}
	case domain.OrderFailed:
		r.logger.Warn(ctx, "Order failed in execution", map[string]interface{}{
			"orderID": order.ID, "reason": failReason(order),
		})
	default:
		return fmt.Errorf("order %s in non-terminal state %s: %w", order.ID, order.State, ports.ErrIllegalOrderJump)
	}

	// Feed the updated account back into the breaker and persist both.
	account.Breaker = r.breaker.Refresh(ctx, account)
	account.UpdatedAt = time.Now().UTC()
	if err := r.accounts.SaveAccount(ctx, account); err != nil {
		return err
	}

	return r.journal.Append(ctx, &domain.AuditRecord{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Size:       order.Size,
		RiskPct:    order.TraceRiskPct,
		TierMult:   order.TraceTierMult,
		Exposure:   order.TraceExposure,
		Outcome:    order.State,
		FillPrice:  fillPrice(order),
		FillSize:   fillSize(order),
		FailReason: failReason(order),
		RecordedAt: time.Now().UTC(),
	})
}

// applyOpen creates a position from an opening fill.
func (r *Reconciler) applyOpen(ctx context.Context, order *domain.Order) error {
	existing, err := r.positions.FindPositionByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil // fill already applied in a previous drain
	}

	pos := &domain.Position{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Size:       fillSize(order),
		EntryPrice: fillPrice(order),
		EntryTime:  time.Now().UTC(),
		StopPrice:  order.StopPrice,
		RiskPct:    order.TraceRiskPct,
		Status:     domain.StatusOpen,
	}
	if _, err := r.positions.CreatePosition(ctx, pos); err != nil {
		return err
	}
	r.logger.Info(ctx, "Position opened from fill", map[string]interface{}{
		"positionID": pos.ID, "orderID": order.ID, "symbol": pos.Symbol, "size": pos.Size,
	})
	return nil
}

// applyClose realizes PnL on a closing fill and releases the position's
// reserved risk.
func (r *Reconciler) applyClose(ctx context.Context, order *domain.Order, account *domain.AccountState) error {
	pos, err := r.positions.FindPosition(ctx, order.ClosePositionID)
	if err != nil {
		return err
	}
	if pos == nil {
		return fmt.Errorf("close order %s references unknown position %d: %w", order.ID, order.ClosePositionID, ports.ErrNotFound)
	}
	if !pos.IsOpen() {
		return nil // close already applied in a previous drain
	}

	pointValue := 1.0
	if spec, ok := r.policy.Symbol(pos.Symbol); ok {
		pointValue = spec.PointValue
	}
	pnl := pos.UnrealizedPnL(fillPrice(order), pointValue)

	pos.Status = domain.StatusClosed
	pos.ExitPrice = fillPrice(order)
	pos.ExitTime = time.Now().UTC()
	pos.PNL = pnl
	pos.CloseReason = domain.CloseReasonProfitBanking
	if err := r.positions.UpdatePosition(ctx, pos); err != nil {
		return err
	}

	account.Balance += pnl
	account.DailyPnL += pnl

	// Equity must keep the remaining positions' mark-to-market P&L:
	// collapsing it to the balance would overstate equity to the breaker
	// while other positions are underwater.
	remaining, err := r.remainingUnrealized(ctx)
	if err != nil {
		return err
	}
	account.Equity = account.Balance + remaining
	if account.Equity > account.PeakEquity {
		account.PeakEquity = account.Equity
	}

	r.logger.Info(ctx, "Position closed from fill", map[string]interface{}{
		"positionID": pos.ID, "orderID": order.ID, "pnl": pnl,
	})
	return nil
}

// remainingUnrealized sums mark-to-market P&L over the still-open
// positions. A symbol without a mark contributes zero, matching the
// decision cycle's equity refresh.
func (r *Reconciler) remainingUnrealized(ctx context.Context) (float64, error) {
	open, err := r.positions.FindOpenPositions(ctx)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, pos := range open {
		mark, err := r.marks.MarkPrice(ctx, pos.Symbol)
		if err != nil {
			continue
		}
		pointValue := 1.0
		if spec, ok := r.policy.Symbol(pos.Symbol); ok {
			pointValue = spec.PointValue
		}
		total += pos.UnrealizedPnL(mark, pointValue)
	}
	return total, nil
}

func fillPrice(order *domain.Order) float64 {
	if order.Result != nil {
		return order.Result.FillPrice
	}
	return 0
}

func fillSize(order *domain.Order) float64 {
	if order.Result != nil {
		return order.Result.FillSize
	}
	return 0
}

func failReason(order *domain.Order) string {
	if order.Result != nil {
		return order.Result.Reason
	}
	return ""
}
