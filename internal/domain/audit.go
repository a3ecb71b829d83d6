package domain

import "time"

// AuditRecord is the immutable per-terminal-order journal entry emitted
// by the reconciler. Append-only, keyed by order id.
type AuditRecord struct {
	OrderID    string
	Symbol     string
	Side       OrderSide
	Size       float64
	RiskPct    float64 // effective risk % the sizing approved
	TierMult   float64 // drawdown-tier multiplier applied
	Exposure   string  // exposure check summary at decision time
	Outcome    OrderState
	FillPrice  float64
	FillSize   float64
	FailReason string
	RecordedAt time.Time
}
