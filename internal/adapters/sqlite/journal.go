package sqlite

import (
	"context"
	"fmt"

	"atrx/internal/domain"
)

// Append writes one immutable audit record per terminal order.
// The journal is append-only and keyed by order id: appending a record
// for an already-journaled order is a no-op, which makes reconciliation
// replays idempotent.
func (s *Store) Append(ctx context.Context, rec *domain.AuditRecord) error {
	const query = `
	INSERT OR IGNORE INTO audit_journal
		(order_id, symbol, side, size, risk_pct, tier_mult, exposure,
		 outcome, fill_price, fill_size, fail_reason, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		rec.OrderID, rec.Symbol, rec.Side, rec.Size, rec.RiskPct, rec.TierMult,
		rec.Exposure, rec.Outcome, rec.FillPrice, rec.FillSize, rec.FailReason,
		rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit record for order %s: %w", rec.OrderID, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug(ctx, "Audit record already journaled", map[string]interface{}{"orderID": rec.OrderID})
	}
	return nil
}
