package domain

import "time"

// OrderState is the queue lifecycle state of an order.
// Transitions are strictly PENDING→INFLIGHT→{DONE|FAILED}; an expired
// lease moves an order back to PENDING via the sweeper, which is the only
// sanctioned reversal.
type OrderState string

const (
	OrderPending  OrderState = "PENDING"
	OrderInflight OrderState = "INFLIGHT"
	OrderDone     OrderState = "DONE"
	OrderFailed   OrderState = "FAILED"
)

// IsTerminal reports whether the state is DONE or FAILED.
func (s OrderState) IsTerminal() bool {
	return s == OrderDone || s == OrderFailed
}

// Order is the durable handoff record between the decision process and
// the execution agent. The queue owns it until terminal, after which the
// reconciler archives it exactly once.
type Order struct {
	ID          string // producer-assigned ULID, globally unique
	Symbol      string
	Side        OrderSide
	Size        float64
	StopPrice   float64 // protective stop distance in price units; the terminal anchors it to the fill
	SubmittedAt time.Time

	// ClosePositionID is non-zero when the order flattens an existing
	// position (profit banking) instead of opening a new one.
	ClosePositionID int64

	State       OrderState
	LeaseOwner  string    // consumer holding the active lease, empty if none
	LeaseExpiry time.Time // lease deadline; expired leases are swept
	Reclaims    int       // times the order was swept back to PENDING

	// Decision trace, carried for the audit journal.
	TraceRiskPct  float64 // effective risk % the sizing approved
	TraceTierMult float64 // drawdown-tier multiplier applied
	TraceExposure string  // exposure check summary

	Result *OrderResult // set when terminal
}

// OrderResult is the execution outcome reported by the agent.
type OrderResult struct {
	FillPrice float64
	FillSize  float64
	Reason    string // failure reason code when the order FAILED
}
