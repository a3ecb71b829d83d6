package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"atrx/internal/domain"
	"atrx/internal/ports"
)

// Queue implements ports.OrderQueue on SQLite. The database file is the
// only thing the decision process and the execution agent share: every
// state transition is a conditional UPDATE guarded by the expected
// current state, committed before the call returns, so a crash on either
// side leaves the order in a well-defined recoverable state.
type Queue struct {
	db       *sql.DB
	logger   ports.Logger
	leaseTTL time.Duration

	// now is swapped out in tests to drive lease expiry.
	now func() time.Time
}

// QueueConfig holds configuration for the order queue.
type QueueConfig struct {
	DBPath   string
	Logger   ports.Logger
	LeaseTTL time.Duration
}

// NewQueue opens the durable order queue and initializes its schema.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite queue")
	}
	if cfg.LeaseTTL <= 0 {
		return nil, fmt.Errorf("lease TTL must be positive")
	}
	ctx := context.Background()

	db, err := openDB(ctx, cfg.DBPath, cfg.Logger)
	if err != nil {
		cfg.Logger.Error(ctx, err, "SQLite queue initialization failed")
		return nil, err
	}

	q := &Queue{db: db, logger: cfg.Logger, leaseTTL: cfg.LeaseTTL, now: func() time.Time { return time.Now().UTC() }}
	if err := q.initializeSchema(ctx); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize queue schema: %w", err)
		cfg.Logger.Error(ctx, err, "SQLite queue initialization failed")
		return nil, err
	}
	return q, nil
}

func (q *Queue) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		size REAL NOT NULL,
		stop_price REAL NOT NULL,
		submitted_at TIMESTAMP NOT NULL,
		close_position_id INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		lease_owner TEXT NOT NULL DEFAULT '',
		lease_expiry TIMESTAMP DEFAULT NULL,
		reclaims INTEGER NOT NULL DEFAULT 0,
		trace_risk_pct REAL NOT NULL DEFAULT 0,
		trace_tier_mult REAL NOT NULL DEFAULT 0,
		trace_exposure TEXT NOT NULL DEFAULT '',
		fill_price REAL DEFAULT NULL,
		fill_size REAL DEFAULT NULL,
		fail_reason TEXT DEFAULT NULL,
		archived INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_orders_state_submitted ON orders (state, submitted_at);
	`
	if _, err := q.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (q *Queue) Close() error {
	if q.db != nil {
		q.logger.Info(context.Background(), "Closing SQLite queue connection")
		return q.db.Close()
	}
	return nil
}

// Submit durably persists the order with state PENDING before returning.
func (q *Queue) Submit(ctx context.Context, order *domain.Order) error {
	const query = `
	INSERT INTO orders (id, symbol, side, size, stop_price, submitted_at,
	                    close_position_id, state, trace_risk_pct, trace_tier_mult, trace_exposure)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	order.State = domain.OrderPending
	_, err := q.db.ExecContext(ctx, query,
		order.ID, order.Symbol, order.Side, order.Size, order.StopPrice,
		order.SubmittedAt, order.ClosePositionID, order.State,
		order.TraceRiskPct, order.TraceTierMult, order.TraceExposure)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s: %w", order.ID, ports.ErrDuplicateOrder)
		}
		return fmt.Errorf("failed to persist order %s: %w: %v", order.ID, ports.ErrQueueWrite, err)
	}
	q.logger.Debug(ctx, "Order submitted", map[string]interface{}{"orderID": order.ID, "symbol": order.Symbol})
	return nil
}

// Claim atomically moves the oldest PENDING order to INFLIGHT under a
// lease for consumerID. The transition runs in one transaction with the
// UPDATE guarded by state='PENDING', so two claimants can never both
// succeed for the same order: the loser's UPDATE affects zero rows.
func (q *Queue) Claim(ctx context.Context, consumerID string) (*domain.Order, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	const selectOldest = `
	SELECT ` + orderColumns + `
	FROM orders WHERE state = ? ORDER BY submitted_at, id LIMIT 1`

	order, err := scanOrder(tx.QueryRowContext(ctx, selectOldest, domain.OrderPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrQueueEmpty
		}
		return nil, fmt.Errorf("failed to select claimable order: %w", err)
	}

	expiry := q.now().Add(q.leaseTTL)
	const update = `
	UPDATE orders SET state = ?, lease_owner = ?, lease_expiry = ?
	WHERE id = ? AND state = ?`

	result, err := tx.ExecContext(ctx, update,
		domain.OrderInflight, consumerID, expiry, order.ID, domain.OrderPending)
	if err != nil {
		return nil, fmt.Errorf("failed to lease order %s: %w", order.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected leasing order %s: %w", order.ID, err)
	}
	if rows == 0 {
		// Lost the race to a concurrent claimant; caller retries next cycle.
		return nil, ports.ErrQueueEmpty
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim of order %s: %w", order.ID, err)
	}

	order.State = domain.OrderInflight
	order.LeaseOwner = consumerID
	order.LeaseExpiry = expiry
	q.logger.Debug(ctx, "Order claimed", map[string]interface{}{"orderID": order.ID, "consumerID": consumerID})
	return order, nil
}

// Complete transitions an INFLIGHT order to a terminal state, but only
// while consumerID still holds an unexpired lease.
func (q *Queue) Complete(ctx context.Context, orderID, consumerID string, state domain.OrderState, result domain.OrderResult) error {
	if !state.IsTerminal() {
		return fmt.Errorf("complete to %s: %w", state, ports.ErrIllegalOrderJump)
	}

	const update = `
	UPDATE orders
	SET state = ?, fill_price = ?, fill_size = ?, fail_reason = ?,
	    lease_owner = '', lease_expiry = NULL
	WHERE id = ? AND state = ? AND lease_owner = ? AND lease_expiry >= ?`

	res, err := q.db.ExecContext(ctx, update,
		state, result.FillPrice, result.FillSize, result.Reason,
		orderID, domain.OrderInflight, consumerID, q.now())
	if err != nil {
		return fmt.Errorf("failed to complete order %s: %w", orderID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected completing order %s: %w", orderID, err)
	}
	if rows == 0 {
		existing, findErr := q.Find(ctx, orderID)
		if findErr == nil && existing == nil {
			return fmt.Errorf("order %s: %w", orderID, ports.ErrNotFound)
		}
		// The order exists but the guard failed: the lease expired and was
		// swept, or another consumer holds it now.
		return fmt.Errorf("order %s: %w", orderID, ports.ErrLeaseLost)
	}
	q.logger.Debug(ctx, "Order completed", map[string]interface{}{"orderID": orderID, "state": state})
	return nil
}

// SweepExpiredLeases requeues INFLIGHT orders whose lease expired, at
// most maxReclaims times per order; beyond that the order is force-failed
// with reason LEASE_EXHAUSTED and never reclaimed again.
func (q *Queue) SweepExpiredLeases(ctx context.Context, maxReclaims int) (requeued, failed []string, err error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin sweep transaction: %w", err)
	}
	defer tx.Rollback()

	now := q.now()
	rows, err := tx.QueryContext(ctx,
		`SELECT id, reclaims FROM orders WHERE state = ? AND lease_expiry < ? ORDER BY submitted_at, id`,
		domain.OrderInflight, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan expired leases: %w", err)
	}
	type expired struct {
		id       string
		reclaims int
	}
	var all []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.id, &e.reclaims); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan expired lease row: %w", err)
		}
		all = append(all, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating expired leases: %w", err)
	}

	for _, e := range all {
		if e.reclaims >= maxReclaims {
			_, err = tx.ExecContext(ctx,
				`UPDATE orders SET state = ?, fail_reason = ?, lease_owner = '', lease_expiry = NULL
				 WHERE id = ? AND state = ?`,
				domain.OrderFailed, domain.FailReasonLeaseExhausted, e.id, domain.OrderInflight)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to force-fail order %s: %w", e.id, err)
			}
			failed = append(failed, e.id)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE orders SET state = ?, lease_owner = '', lease_expiry = NULL, reclaims = reclaims + 1
				 WHERE id = ? AND state = ?`,
				domain.OrderPending, e.id, domain.OrderInflight)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to requeue order %s: %w", e.id, err)
			}
			requeued = append(requeued, e.id)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit sweep: %w", err)
	}

	if len(requeued) > 0 || len(failed) > 0 {
		q.logger.Info(ctx, "Swept expired leases", map[string]interface{}{"requeued": len(requeued), "forceFailed": len(failed)})
	}
	return requeued, failed, nil
}

// PollTerminal waits, bounded by timeout, for the order to reach a
// terminal state. On timeout it returns ErrIndeterminate; the caller must
// not resubmit, since the order may still execute.
func (q *Queue) PollTerminal(ctx context.Context, orderID string, timeout time.Duration) (*domain.Order, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		order, err := q.Find(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, fmt.Errorf("order %s: %w", orderID, ports.ErrNotFound)
		}
		if order.State.IsTerminal() {
			return order, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("order %s: %w", orderID, ports.ErrIndeterminate)
		case <-tick.C:
		}
	}
}

// Find retrieves an order by id. Returns nil, nil if not found.
func (q *Queue) Find(ctx context.Context, orderID string) (*domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	order, err := scanOrder(q.db.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query order %s: %w", orderID, err)
	}
	return order, nil
}

// UnresolvedCloses returns the position ids referenced by PENDING or
// INFLIGHT close orders.
func (q *Queue) UnresolvedCloses(ctx context.Context) ([]int64, error) {
	const query = `
	SELECT DISTINCT close_position_id FROM orders
	WHERE close_position_id != 0 AND state IN (?, ?)`

	rows, err := q.db.QueryContext(ctx, query, domain.OrderPending, domain.OrderInflight)
	if err != nil {
		return nil, fmt.Errorf("failed to query unresolved close orders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan unresolved close row: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unresolved close orders: %w", err)
	}
	return ids, nil
}

// Terminal retrieves terminal orders not yet archived by the reconciler.
func (q *Queue) Terminal(ctx context.Context) ([]*domain.Order, error) {
	const query = `
	SELECT ` + orderColumns + `
	FROM orders WHERE state IN (?, ?) AND archived = 0 ORDER BY submitted_at, id`

	rows, err := q.db.QueryContext(ctx, query, domain.OrderDone, domain.OrderFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to query terminal orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan terminal order: %w", err)
		}
		orders = append(orders, order)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating terminal orders: %w", err)
	}
	return orders, nil
}

// MarkArchived records that the reconciler has applied the order.
// Marking an already-archived order is a no-op.
func (q *Queue) MarkArchived(ctx context.Context, orderID string) error {
	result, err := q.db.ExecContext(ctx, `UPDATE orders SET archived = 1 WHERE id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("failed to archive order %s: %w", orderID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected archiving order %s: %w", orderID, err)
	}
	if rows == 0 {
		return fmt.Errorf("order %s not found for archive: %w", orderID, ports.ErrNotFound)
	}
	return nil
}

const orderColumns = `
	id, symbol, side, size, stop_price, submitted_at, close_position_id,
	state, lease_owner, lease_expiry, reclaims,
	trace_risk_pct, trace_tier_mult, trace_exposure,
	fill_price, fill_size, fail_reason`

// scanOrder scans a row into a domain.Order struct.
func scanOrder(s scanner) (*domain.Order, error) {
	o := &domain.Order{}
	var side, state string
	var leaseExpiry sql.NullTime
	var fillPrice, fillSize sql.NullFloat64
	var failReason sql.NullString
	err := s.Scan(
		&o.ID, &o.Symbol, &side, &o.Size, &o.StopPrice, &o.SubmittedAt, &o.ClosePositionID,
		&state, &o.LeaseOwner, &leaseExpiry, &o.Reclaims,
		&o.TraceRiskPct, &o.TraceTierMult, &o.TraceExposure,
		&fillPrice, &fillSize, &failReason)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	o.Side = domain.OrderSide(side)
	o.State = domain.OrderState(state)
	if leaseExpiry.Valid {
		o.LeaseExpiry = leaseExpiry.Time
	}
	if o.State.IsTerminal() {
		o.Result = &domain.OrderResult{
			FillPrice: fillPrice.Float64,
			FillSize:  fillSize.Float64,
			Reason:    failReason.String,
		}
	}
	return o, nil
}

// isUniqueViolation reports whether the driver error is a primary-key
// uniqueness failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
